package models

import "time"

// Exchange is a read-only view of a barter exchange between two users.
// The exchange lifecycle itself is owned by another part of the application;
// chat only needs the participant pair.
type Exchange struct {
	ID          int       `db:"id" json:"id"`
	RequesterID int       `db:"requester_id" json:"requester_id"`
	ResponderID int       `db:"responder_id" json:"responder_id"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user is one of the two exchange parties.
func (e Exchange) HasParticipant(userID int) bool {
	return e.RequesterID == userID || e.ResponderID == userID
}

// OtherParticipant returns the counterpart of the given user.
func (e Exchange) OtherParticipant(userID int) int {
	if e.RequesterID == userID {
		return e.ResponderID
	}
	return e.RequesterID
}
