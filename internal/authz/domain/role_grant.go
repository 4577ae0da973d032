package domain

// RoleGrant is a directed edge of the role-grant graph, owned and mutated
// entirely outside this service: anything whose identity starts with
// SubjectRole inherits Capability over anything starting with ObjectRole.
type RoleGrant struct {
	SubjectRole string
	ObjectRole  string
	Capability  Role
}

// Task is a cataloged processing task. Shards of the task carry identifiers
// prefixed by ShardTemplateID.
type Task struct {
	Name            string
	Type            string
	ShardTemplateID string
}

// Collection is a cataloged resource collection. Its journals carry names
// prefixed by JournalTemplateName.
type Collection struct {
	Name                string
	JournalTemplateName string
}
