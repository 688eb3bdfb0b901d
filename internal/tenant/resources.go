package tenant

// Resource types subject to ownership checks.
const (
	ResourceDocument       = "document"
	ResourceKnowledgeIndex = "knowledge_index"
	ResourceConversation   = "conversation"
)

const maxResourceIDLength = 128

// resourceTables is the closed registry of tenant-owned resources.
var resourceTables = map[string]string{
	ResourceDocument:       "documents",
	ResourceKnowledgeIndex: "knowledge_indexes",
	ResourceConversation:   "conversations",
}

// ResourceTable returns the table holding resourceType.
func ResourceTable(resourceType string) (string, bool) {
	table, ok := resourceTables[resourceType]
	return table, ok
}
