package metadata

import "context"

// Solution is one installed Dataverse solution.
type Solution struct {
	ID           string
	UniqueName   string
	FriendlyName string
	Managed      bool
}

// Form is one main form of a table. XML is fetched lazily via FormXML.
type Form struct {
	ID   string
	Name string
}

// View is one saved query of a table. FetchXML is fetched lazily via
// ViewFetchXML.
type View struct {
	ID   string
	Name string
}

// Source is the abstract metadata collaborator. Implementations talk to the
// Dataverse Web API (or a cache of it); the core only ever reads through
// this interface, once per table or document.
type Source interface {
	// Solutions lists the unmanaged solutions of the environment.
	Solutions(ctx context.Context) ([]Solution, error)
	// Tables lists the tables contained in the named solution.
	Tables(ctx context.Context, solution string) ([]TableInfo, error)
	// Attributes lists the readable attributes of a table.
	Attributes(ctx context.Context, table string) ([]AttributeInfo, error)
	// Forms lists the main forms of a table.
	Forms(ctx context.Context, table string) ([]Form, error)
	// FormXML returns the FormXML document of one form.
	FormXML(ctx context.Context, formID string) (string, error)
	// Views lists the saved queries of a table.
	Views(ctx context.Context, table string) ([]View, error)
	// ViewFetchXML returns the stored FetchXML of one view.
	ViewFetchXML(ctx context.Context, viewID string) (string, error)
}
