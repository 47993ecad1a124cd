package routes

import (
	"github.com/gorilla/mux"

	"platefull.com/project-platefull/handlers"
)

func CreateUserRoutes(env *handlers.Env, router *mux.Router) *mux.Router {
	router.HandleFunc("/users", handlers.CreateUser(env)).Methods("POST")
	router.HandleFunc("/login", handlers.Login(env)).Methods("POST")
	router.HandleFunc("/logout", handlers.Logout(env)).Methods("POST")
	router.HandleFunc("/users/search", handlers.SearchUsers(env)).Methods("GET")
	router.HandleFunc("/users/{userId}", handlers.GetUserByID(env)).Methods("GET")
	router.HandleFunc("/users/me", handlers.DeleteUser(env)).Methods("DELETE")
	router.HandleFunc("/users/me/privacy", handlers.UpdateUserPrivacy(env)).Methods("PUT")
	router.HandleFunc("/users/me/fcm-token", handlers.RegisterFCMToken(env)).Methods("POST")

	router.HandleFunc("/users/{userId}/items", handlers.GetProfileItems(env)).Methods("GET")
	router.HandleFunc("/users/{userId}/recipe-book", handlers.GetRecipeBook(env)).Methods("GET")

	router.HandleFunc("/users/{userId}/follow", handlers.FollowUser(env)).Methods("POST")
	router.HandleFunc("/users/{userId}/follow", handlers.UnfollowUser(env)).Methods("DELETE")
	router.HandleFunc("/users/{userId}/followers", handlers.GetFollowers(env)).Methods("GET")
	router.HandleFunc("/users/{userId}/following", handlers.GetFollowing(env)).Methods("GET")
	router.HandleFunc("/users/{userId}/follow-stats", handlers.GetFollowStats(env)).Methods("GET")
	router.HandleFunc("/users/{userId}/follow-status", handlers.CheckFollowStatus(env)).Methods("GET")

	router.HandleFunc("/follow-requests", handlers.GetPendingRequests(env)).Methods("GET")
	router.HandleFunc("/follow-requests/sent", handlers.GetSentRequests(env)).Methods("GET")
	router.HandleFunc("/follow-requests/{followerId}/accept", handlers.AcceptFollowRequest(env)).Methods("POST")
	router.HandleFunc("/follow-requests/{followerId}/reject", handlers.RejectFollowRequest(env)).Methods("POST")
	router.HandleFunc("/followers/{followerId}", handlers.RemoveFollower(env)).Methods("DELETE")

	router.HandleFunc("/ws/notifications", handlers.NotificationsSocket(env)).Methods("GET")

	return router
}
