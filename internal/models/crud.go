package models

// Operation names the write an entry point performs
type Operation string

const (
	OperationCreate          Operation = "Create"
	OperationUpdate          Operation = "Update"
	OperationCreateAndUpdate Operation = "CreateAndUpdate"
	OperationDelete          Operation = "Delete"
)

// DataInfo configures a single write call
type DataInfo struct {
	Table               string // overrides the kind's table when set
	Operation           Operation
	ErrorWhenDataIsNew  bool
	ErrorWhenDataExists bool
	SaveChangesToDB     bool
}

// EditInfo identifies who or what makes a change
type EditInfo struct {
	Editor string
	Source string
}

// CRUDConstraints restricts a write. An empty Condition always passes and
// empty AccessRoles mean no visibility restriction.
type CRUDConstraints struct {
	Condition   string
	AccessRoles []string
}

// CompareConfig controls change detection
type CompareConfig struct {
	CompareData    bool
	CompareImages  bool
	FieldsToIgnore []string
}

// DefaultIgnoredFields are always excluded from record comparison
var DefaultIgnoredFields = []string{"LastChange", "_Meta", "FirstImport"}
