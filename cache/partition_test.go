package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platefull.com/project-platefull/models"
)

func testItem(id, authorID int) models.Item {
	return models.Item{
		ID:         id,
		AuthorID:   authorID,
		Type:       models.ItemTypeRecipe,
		Title:      "Pasta",
		ImageURLs:  []string{"a.jpg", "b.jpg", "c.jpg"},
		LikesCount: 2,
	}
}

func TestPartitionPutGetReturnsCopies(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10)})

	got, ok := p.Get("page-1")
	require.True(t, ok)
	require.Len(t, got, 1)

	// Mutating the returned copy must not touch the cached value.
	got[0].LikesCount = 99
	got[0].ImageURLs[0] = "hacked.jpg"

	again, ok := p.Get("page-1")
	require.True(t, ok)
	assert.Equal(t, 2, again[0].LikesCount)
	assert.Equal(t, "a.jpg", again[0].ImageURLs[0])
}

func TestPartitionGetMiss(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	_, ok := p.Get("nope")
	assert.False(t, ok)
}

func TestPartitionMutateItemTouchesEveryPage(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10), testItem(2, 11)})
	p.Put(5, "page-2", []models.Item{testItem(1, 10)})

	restores := p.mutateItem(1, func(it *models.Item) { it.LikesCount++ })
	assert.Len(t, restores, 2)

	for _, key := range []string{"page-1", "page-2"} {
		page, _ := p.Get(key)
		assert.Equal(t, 3, page[0].LikesCount, key)
	}
	page, _ := p.Get("page-1")
	assert.Equal(t, 2, page[1].LikesCount, "unrelated item mutated")
}

func TestPartitionRestoreWritesBackExactValue(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10)})

	restores := p.mutateItem(1, func(it *models.Item) {
		it.LikesCount = 7
		it.IsLiked = true
	})

	for _, r := range restores {
		r()
	}

	page, _ := p.Get("page-1")
	assert.Equal(t, 2, page[0].LikesCount)
	assert.False(t, page[0].IsLiked)
}

func TestPartitionRestoreSkipsReplacedPage(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10)})

	restores := p.mutateItem(1, func(it *models.Item) { it.LikesCount = 7 })

	// The page was refreshed between mutation and restore; the restore
	// must not clobber the fresh data.
	fresh := testItem(1, 10)
	fresh.LikesCount = 50
	p.Put(5, "page-1", []models.Item{fresh})

	for _, r := range restores {
		r()
	}

	page, _ := p.Get("page-1")
	assert.Equal(t, 50, page[0].LikesCount)
}

func TestPartitionRemoveRebuildsPages(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10), testItem(2, 11), testItem(3, 12)})
	p.Put(5, "page-2", []models.Item{testItem(2, 11)})

	p.Remove(2)

	page1, _ := p.Get("page-1")
	require.Len(t, page1, 2)
	assert.Equal(t, 1, page1[0].ID)
	assert.Equal(t, 3, page1[1].ID)

	page2, _ := p.Get("page-2")
	assert.Empty(t, page2)

	// The index must still address the survivors correctly.
	restores := p.mutateItem(3, func(it *models.Item) { it.LikesCount = 9 })
	assert.Len(t, restores, 1)
	page1, _ = p.Get("page-1")
	assert.Equal(t, 9, page1[1].LikesCount)
}

func TestPartitionDropCleansIndexes(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10)})
	p.Drop("page-1")

	_, ok := p.Get("page-1")
	assert.False(t, ok)
	_, ok = p.Item(1)
	assert.False(t, ok)
	assert.Zero(t, p.Pages())
}

func TestPartitionClear(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "page-1", []models.Item{testItem(1, 10)})
	p.Put(5, "page-2", []models.Item{testItem(2, 10)})

	p.Clear()

	assert.Zero(t, p.Pages())
	_, ok := p.Item(1)
	assert.False(t, ok)
	assert.Empty(t, p.mutateAuthorFor(5, 10, func(*models.Item) {}))
}

func TestPartitionMutateItemForTouchesOnlyOwnersPages(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "viewer-5|page-1", []models.Item{testItem(1, 10)})
	p.Put(7, "viewer-7|page-1", []models.Item{testItem(1, 10)})

	restores := p.mutateItemFor(5, 1, func(it *models.Item) { it.IsLiked = true })
	assert.Len(t, restores, 1)

	mine, _ := p.Get("viewer-5|page-1")
	assert.True(t, mine[0].IsLiked)
	theirs, _ := p.Get("viewer-7|page-1")
	assert.False(t, theirs[0].IsLiked, "another viewer's copy was flipped")
}

func TestPartitionMutateAuthorForTouchesOnlyOwnersPages(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "viewer-5|page-1", []models.Item{testItem(1, 10)})
	p.Put(7, "viewer-7|page-1", []models.Item{testItem(2, 10)})

	restores := p.mutateAuthorFor(5, 10, func(it *models.Item) { it.IsFollowingAuthor = true })
	assert.Len(t, restores, 1)

	mine, _ := p.Get("viewer-5|page-1")
	assert.True(t, mine[0].IsFollowingAuthor)
	theirs, _ := p.Get("viewer-7|page-1")
	assert.False(t, theirs[0].IsFollowingAuthor, "another viewer's copy was flipped")
}

func TestPartitionItemForReadsOwnersCopy(t *testing.T) {
	p := NewPartition(KindItemDetail)
	liked := testItem(1, 10)
	liked.IsLiked = true
	p.Put(5, "viewer-5|item-1", []models.Item{liked})
	p.Put(7, "viewer-7|item-1", []models.Item{testItem(1, 10)})

	mine, ok := p.ItemFor(5, 1)
	require.True(t, ok)
	assert.True(t, mine.IsLiked)

	theirs, ok := p.ItemFor(7, 1)
	require.True(t, ok)
	assert.False(t, theirs.IsLiked)

	_, ok = p.ItemFor(9, 1)
	assert.False(t, ok, "viewer with no cached page got a copy")
}

func TestPartitionRemoveKeepsPageOwnership(t *testing.T) {
	p := NewPartition(KindHomeFeed)
	p.Put(5, "viewer-5|page-1", []models.Item{testItem(1, 10), testItem(2, 11)})

	p.Remove(2)

	restores := p.mutateItemFor(5, 1, func(it *models.Item) { it.IsLiked = true })
	assert.Len(t, restores, 1, "rebuild lost the page's owner")
}

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewPartition(KindHomeFeed)))
	assert.Error(t, r.Register(NewPartition(KindHomeFeed)))
}

func TestRegistryOrderIsRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	kinds := []Kind{KindItemDetail, KindHomeFeed, KindRecipeBook}
	for _, k := range kinds {
		require.NoError(t, r.Register(NewPartition(k)))
	}
	assert.Equal(t, kinds, r.Kinds())

	parts := r.Partitions()
	require.Len(t, parts, 3)
	for i, k := range kinds {
		assert.Equal(t, k, parts[i].Kind())
	}
}
