package services

import (
	"context"
	"database/sql"
	"log"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// Push sends FCM notifications and prunes dead device tokens. Construct
// one in the composition root and pass it to whoever sends; there is no
// package-level instance.
type Push struct {
	client *messaging.Client
	db     *sql.DB
}

// NewPush initializes the Firebase messaging client from a credentials
// file.
func NewPush(ctx context.Context, credentialsPath string, db *sql.DB) (*Push, error) {
	log.Printf("[FCM] Initializing Firebase with credentials: %s", credentialsPath)

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}

	log.Println("[FCM] Firebase Messaging client initialized")
	return &Push{client: client, db: db}, nil
}

// Send delivers one notification to one device token.
func (p *Push) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:  data,
		Token: token,
	}

	response, err := p.client.Send(ctx, message)
	if err != nil {
		log.Printf("Error sending notification: %v", err)
		return err
	}
	log.Printf("Successfully sent message: %s", response)
	return nil
}

// SendMulticast delivers one notification to many device tokens and
// returns the success and failure counts. Tokens the provider reports as
// unregistered are deleted from fcm_tokens.
func (p *Push) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (int, int, error) {
	log.Printf("[FCM] Sending multicast | tokens=%d title=%q", len(tokens), title)

	message := &messaging.MulticastMessage{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data:   data,
		Tokens: tokens,
	}

	response, err := p.client.SendEachForMulticast(ctx, message)
	if err != nil {
		log.Printf("[FCM][ERROR] Multicast send failed entirely: %v", err)
		return 0, 0, err
	}

	log.Printf("[FCM] Multicast result | success=%d failure=%d",
		response.SuccessCount, response.FailureCount)

	for i, resp := range response.Responses {
		if resp.Success {
			continue
		}
		token := tokens[i]
		log.Printf("[FCM][TOKEN ERROR] token=%s error=%v", token, resp.Error)

		if messaging.IsUnregistered(resp.Error) {
			log.Printf("[FCM] Deleting dead token: %s", token)
			if _, err := p.db.ExecContext(ctx,
				`DELETE FROM fcm_tokens WHERE token = $1`, token); err != nil {
				log.Printf("[FCM][ERROR] Failed to delete token %s: %v", token, err)
			}
		}
	}

	return response.SuccessCount, response.FailureCount, nil
}

// NotifyUser gathers the user's registered tokens and multicasts to
// them. Users with no tokens are skipped quietly.
func (p *Push) NotifyUser(ctx context.Context, userID int, title, body string, data map[string]string) error {
	rows, err := p.db.QueryContext(ctx, `
		SELECT token FROM fcm_tokens
		WHERE user_id = $1 AND token IS NOT NULL AND token != ''`,
		userID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			log.Printf("Error scanning FCM token: %v", err)
			continue
		}
		tokens = append(tokens, token)
	}
	if len(tokens) == 0 {
		log.Printf("No FCM tokens found for user %d", userID)
		return nil
	}

	_, _, err = p.SendMulticast(ctx, tokens, title, body, data)
	return err
}
