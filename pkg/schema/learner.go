// Package schema defines the data structures shared by the pond daemon, its
// HTTP API and its clients.
package schema

import "time"

// LearnersApp is the app under the system persona that holds LearnerRecords.
const LearnersApp = "learners"

// LearnerRecord is the profile of a learner who has opened the game.
// It is stored in the '_system' persona under the 'learners' app, keyed by learner ID.
type LearnerRecord struct {
	ID         string    `json:"id"`
	Level      string    `json:"level"`
	Lang       string    `json:"lang"`
	Sessions   int       `json:"sessions"`
	LastActive time.Time `json:"last_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateSessionRequest opens a page session.
type CreateSessionRequest struct {
	Learner string `json:"learner" binding:"required"`
	Level   string `json:"level"`
	Lang    string `json:"lang"`
}

// ButtonRequest accompanies a button press. Workspace carries the
// serialized program for the run button; Input is "click" or "touchend".
type ButtonRequest struct {
	Input     string `json:"input,omitempty"`
	Workspace string `json:"workspace,omitempty"`
	Level     string `json:"level,omitempty"`
}

// ButtonResponse reports what a press did. Notifications are the messages
// the page should show the learner.
type ButtonResponse struct {
	Accepted      bool     `json:"accepted"`
	DocsURL       string   `json:"docs_url,omitempty"`
	State         any      `json:"state"`
	Notifications []string `json:"notifications"`
}
