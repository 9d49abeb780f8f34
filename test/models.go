//go:build integration
// +build integration

package test

import "time"

// Message represents a mailbox message.
type Message struct {
	ID        string    `bson:"id,omitempty"`
	MailboxID int       `bson:"mailbox_id"`
	UID       int       `bson:"uid"`
	Status    int       `bson:"status"`
	Size      int       `bson:"size"`
	Subject   string    `bson:"subject"`
	CreatedAt time.Time `bson:"created_at"`
}

// CollectionName implements fesdql.Namer.
func (Message) CollectionName() string { return "messages" }

// Attachment represents a message attachment.
type Attachment struct {
	ID        string `bson:"id,omitempty"`
	MessageID string `bson:"message_id"`
	Filename  string `bson:"filename"`
	Size      int    `bson:"size"`
}

// CollectionName implements fesdql.Namer.
func (Attachment) CollectionName() string { return "attachments" }
