package routes

import (
	"github.com/gorilla/mux"

	"platefull.com/project-platefull/handlers"
)

func CreateItemRoutes(env *handlers.Env, router *mux.Router) *mux.Router {
	router.HandleFunc("/feed", handlers.GetFeed(env)).Methods("GET")
	router.HandleFunc("/items", handlers.CreateItem(env)).Methods("POST")
	router.HandleFunc("/items/stats", handlers.GetItemStats(env)).Methods("GET")
	router.HandleFunc("/items/{itemId}", handlers.GetItem(env)).Methods("GET")
	router.HandleFunc("/items/{itemId}", handlers.DeleteItem(env)).Methods("DELETE")
	router.HandleFunc("/items/{itemId}/thumbnail", handlers.ChangeThumbnail(env)).Methods("PUT")

	router.HandleFunc("/items/{itemId}/like", handlers.SetLike(env)).Methods("PUT")
	router.HandleFunc("/items/{itemId}/likers", handlers.GetLikers(env)).Methods("GET")
	router.HandleFunc("/items/{itemId}/comments", handlers.CreateComment(env)).Methods("POST")
	router.HandleFunc("/items/{itemId}/comments", handlers.GetComments(env)).Methods("GET")
	router.HandleFunc("/comments/{commentId}", handlers.DeleteComment(env)).Methods("DELETE")

	return router
}
