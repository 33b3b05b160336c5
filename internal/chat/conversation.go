package chat

// ConversationID derives the grouping key for messages between two users.
// The pair is unordered: the two identities are sorted before joining, so
// ConversationID(a, b) == ConversationID(b, a). The value is derived on
// demand and never stored independently.
func ConversationID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
