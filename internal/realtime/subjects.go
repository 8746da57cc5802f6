package realtime

import (
	"fmt"
)

const subjectPrefix = "chat"

// messageSubject carries message-received events for one user.
func messageSubject(userID string) string {
	return fmt.Sprintf("%s.user.%s.message", subjectPrefix, userID)
}

// threadSubject carries thread-updated conversation snapshots for one user.
func threadSubject(userID string) string {
	return fmt.Sprintf("%s.user.%s.thread", subjectPrefix, userID)
}

// joinSubject is the outbound join-thread action.
func joinSubject(threadID string) string {
	return fmt.Sprintf("%s.thread.%s.join", subjectPrefix, threadID)
}

// sendSubject is the outbound send-message action.
func sendSubject() string {
	return subjectPrefix + ".send"
}

// readSubject is the outbound mark-thread-read action.
func readSubject() string {
	return subjectPrefix + ".read"
}
