package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"platefull.com/project-platefull/models"
)

// CreateUser registers a new account.
func CreateUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var user models.User
		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		user.Username = strings.TrimSpace(user.Username)
		user.Email = strings.TrimSpace(user.Email)
		if user.Username == "" || user.Email == "" || user.Password == "" {
			http.Error(w, "username, email and password are required", http.StatusBadRequest)
			return
		}
		if user.DisplayName == "" {
			user.DisplayName = user.Username
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
			return
		}

		err = env.Remote.QueryRow(r.Context(), `
			INSERT INTO users (username, display_name, email, password, bio, avatar_url, is_private, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING id, created_at`,
			user.Username, user.DisplayName, user.Email, string(hashed),
			user.Bio, user.AvatarURL, user.IsPrivate,
		).Scan(&user.ID, &user.CreatedAt)
		if err != nil {
			if strings.Contains(err.Error(), "duplicate key") {
				http.Error(w, "Username or email already taken", http.StatusConflict)
				return
			}
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
			log.Println("CreateUser error:", err)
			return
		}

		user.Password = ""
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(user)
	}
}

// Login checks credentials and issues a session token.
func Login(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		var user models.User
		var hashed string
		err := env.Remote.QueryRow(r.Context(), `
			SELECT id, username, display_name, email, password, is_private, created_at
			FROM users WHERE username = $1 OR email = $1`,
			req.Username,
		).Scan(&user.ID, &user.Username, &user.DisplayName, &user.Email,
			&hashed, &user.IsPrivate, &user.CreatedAt)
		if err == sql.ErrNoRows {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		if err != nil {
			http.Error(w, "Failed to log in", http.StatusInternalServerError)
			log.Println("Login error:", err)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(req.Password)) != nil {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		token, err := env.Sessions.IssueToken(user.ID)
		if err != nil {
			http.Error(w, "Failed to log in", http.StatusInternalServerError)
			log.Println("Login token error:", err)
			return
		}

		writeJSON(w, map[string]any{"token": token, "user": user})
	}
}

// Logout discards the viewer's server-side session state.
func Logout(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		env.Sessions.EndSession(viewerID)
		writeJSON(w, map[string]string{"message": "Logged out"})
	}
}

// GetUserByID returns a user's profile with follow stats and the
// viewer's relationship to them.
func GetUserByID(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		userID, ok := pathInt(mux.Vars(r), "userId")
		if !ok {
			http.Error(w, "Invalid userId", http.StatusBadRequest)
			return
		}

		var user models.User
		err = env.Remote.QueryRow(r.Context(), `
			SELECT id, username, display_name, COALESCE(bio, ''), COALESCE(avatar_url, ''), is_private, created_at
			FROM users WHERE id = $1`,
			userID,
		).Scan(&user.ID, &user.Username, &user.DisplayName, &user.Bio,
			&user.AvatarURL, &user.IsPrivate, &user.CreatedAt)
		if err == sql.ErrNoRows {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Failed to fetch user", http.StatusInternalServerError)
			log.Println("GetUserByID error:", err)
			return
		}

		stats, err := env.Remote.FollowStats(r.Context(), userID)
		if err != nil {
			http.Error(w, "Failed to fetch user", http.StatusInternalServerError)
			log.Println("GetUserByID stats error:", err)
			return
		}

		isFollowing := false
		if fs, err := env.Sessions.FollowStoreFor(r.Context(), viewerID); err == nil {
			isFollowing = fs.IsFollowing(userID)
		}

		writeJSON(w, map[string]any{
			"user":         user,
			"stats":        stats,
			"is_following": isFollowing,
		})
	}
}

// SearchUsers finds users by username or display name prefix.
func SearchUsers(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := env.viewer(r); err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeJSON(w, []models.UserSearchResult{})
			return
		}

		rows, err := env.Remote.Query(r.Context(), `
			SELECT id, username, display_name, COALESCE(avatar_url, ''), created_at
			FROM users
			WHERE username ILIKE $1 OR display_name ILIKE $1
			ORDER BY username
			LIMIT 20`,
			query+"%")
		if err != nil {
			http.Error(w, "Failed to search users", http.StatusInternalServerError)
			log.Println("SearchUsers error:", err)
			return
		}
		defer rows.Close()

		results := []models.UserSearchResult{}
		for rows.Next() {
			var u models.UserSearchResult
			if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.CreatedAt); err != nil {
				http.Error(w, "Failed to search users", http.StatusInternalServerError)
				log.Println("SearchUsers scan error:", err)
				return
			}
			results = append(results, u)
		}
		writeJSON(w, results)
	}
}

// UpdateUserPrivacy toggles the viewer's private-account flag.
func UpdateUserPrivacy(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req struct {
			IsPrivate bool `json:"is_private"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		_, err = env.Remote.Mutate(r.Context(),
			`UPDATE users SET is_private = $1 WHERE id = $2`,
			req.IsPrivate, viewerID)
		if err != nil {
			http.Error(w, "Failed to update privacy", http.StatusInternalServerError)
			log.Println("UpdateUserPrivacy error:", err)
			return
		}

		writeJSON(w, map[string]any{
			"message":    "Privacy updated",
			"is_private": req.IsPrivate,
		})
	}
}

// DeleteUser removes the viewer's account. Owned rows cascade in the
// schema.
func DeleteUser(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		if _, err := env.Remote.Mutate(r.Context(),
			`DELETE FROM users WHERE id = $1`, viewerID); err != nil {
			http.Error(w, "Failed to delete user", http.StatusInternalServerError)
			log.Println("DeleteUser error:", err)
			return
		}

		env.Sessions.EndSession(viewerID)
		invalidateListings(env)

		writeJSON(w, map[string]string{"message": "User deleted successfully"})
	}
}

// RegisterFCMToken stores a device token for push notifications.
func RegisterFCMToken(env *Env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewerID, err := env.viewer(r)
		if err != nil {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
			http.Error(w, "token is required", http.StatusBadRequest)
			return
		}

		_, err = env.Remote.Mutate(r.Context(), `
			INSERT INTO fcm_tokens (user_id, token, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (token) DO UPDATE SET user_id = $1`,
			viewerID, req.Token)
		if err != nil {
			http.Error(w, "Failed to register token", http.StatusInternalServerError)
			log.Println("RegisterFCMToken error:", err)
			return
		}

		writeJSON(w, map[string]string{"message": "Token registered"})
	}
}
