package tsurugipb

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// SQL service identity (spec §6.3): the symbolic id is "sql"; the version
// string the client currently speaks is "sql-1.4".
const (
	SQLServiceID           = 3
	SQLServiceSymbolicID   = "sql"
	SQLServiceVersionMajor = 1
	SQLServiceVersionMinor = 4
)

// ParameterValue is a oneof carrier for a single bound parameter's value.
// Exactly one of the typed fields should be set; IsNull overrides all.
type ParameterValue struct {
	IsNull      bool
	Int8        *int64
	Float8      *float64
	Character   *string
	ReferenceLOB *string // channel-name for a LOB parameter (spec §4.8)
}

// Parameter is a single named, typed value bound to a prepared statement
// invocation (spec §4.8: "prepared parameters carry a name, not positional").
type Parameter struct {
	Name  string
	Value ParameterValue
}

const (
	fieldParamName  = 1
	fieldParamNull  = 2
	fieldParamInt8  = 3
	fieldParamFloat8 = 4
	fieldParamChar  = 5
	fieldParamLOB   = 6
)

func (p *Parameter) marshal() []byte {
	w := &msgWriter{}
	w.stringField(fieldParamName, p.Name)
	switch {
	case p.Value.IsNull:
		w.boolField(fieldParamNull, true)
	case p.Value.Int8 != nil:
		w.int64Field(fieldParamInt8, *p.Value.Int8)
	case p.Value.Float8 != nil:
		w.buf = protowire.AppendTag(w.buf, fieldParamFloat8, protowire.Fixed64Type)
		w.buf = protowire.AppendFixed64(w.buf, float64bits(*p.Value.Float8))
	case p.Value.Character != nil:
		w.stringField(fieldParamChar, *p.Value.Character)
	case p.Value.ReferenceLOB != nil:
		w.stringField(fieldParamLOB, *p.Value.ReferenceLOB)
	}
	return w.bytes()
}

func float64bits(f float64) uint64 {
	return math.Float64bits(f)
}

// Placeholder names a parameter's declared type for Prepare (spec §4.8).
type Placeholder struct {
	Name     string
	TypeName string // e.g. "int8", "character", "float8" - server-defined, opaque to the client
}

// PrepareRequest/Response ----------------------------------------------------

type PrepareRequest struct {
	SQL          string
	Placeholders []Placeholder
}

type PrepareResponse struct {
	Handle           uint64
	HasResultRecords bool
	Error            *ServiceError
}

// BeginRequest/Response -------------------------------------------------------

// TransactionType mirrors the server's transaction-option enum.
type TransactionType int

const (
	TransactionTypeShort TransactionType = iota
	TransactionTypeLong
	TransactionTypeReadOnly
)

type BeginRequest struct {
	Type            TransactionType
	Label           string
	WritePreserve   []string
	Priority        int32
}

type BeginResponse struct {
	Handle uint64
	Error  *ServiceError
}

// ExecuteStatementRequest/Response -------------------------------------------

type ExecuteStatementRequest struct {
	TransactionHandle uint64
	SQL               string
}

type PreparedExecuteRequest struct {
	TransactionHandle uint64
	PreparedHandle    uint64
	Parameters        []Parameter
}

// SqlExecuteResult is the counters returned by execute/prepared-execute
// (spec §3 SqlExecuteResult).
type SqlExecuteResult struct {
	InsertedRows int64
	UpdatedRows  int64
	DeletedRows  int64
	MergedRows   int64
	Error        *ServiceError
}

// ExecuteQueryRequest/Response (streaming query) -----------------------------

type ExecuteQueryRequest struct {
	TransactionHandle uint64
	SQL               string
}

type PreparedQueryRequest struct {
	TransactionHandle uint64
	PreparedHandle    uint64
	Parameters        []Parameter
}

// Column describes one result-set column's verbatim server metadata
// (spec §3 Non-goals: no client-side schema inference).
type Column struct {
	Name     string
	TypeName string
	Nullable bool
}

// ExecuteQueryResponse is the body-head of a streaming query: the
// data-channel name plus the column metadata (spec §4.8 streaming query
// template).
type ExecuteQueryResponse struct {
	DataChannelName string
	Columns         []Column
	Error           *ServiceError
}

// CommitRequest/Response ------------------------------------------------------

type NotificationType int

const (
	NotificationDefault NotificationType = iota
	NotificationAccepted
	NotificationAvailable
	NotificationStored
	NotificationPropagated
)

type CommitRequest struct {
	TransactionHandle uint64
	Notification      NotificationType
	AutoDispose       bool
}

// RollbackRequest/DisposeTransactionRequest/DisposePreparedStatementRequest --

type RollbackRequest struct {
	TransactionHandle uint64
}

type DisposeTransactionRequest struct {
	TransactionHandle uint64
}

type DisposePreparedStatementRequest struct {
	Handle           uint64
	HasResultRecords bool // preserved verbatim per spec §9 open question
}

type GetTransactionErrorInfoRequest struct {
	TransactionHandle uint64
}

// ServiceError is the structured service-specific failure variant of spec
// §7 kind 7: a code string, category name/number, and free-form message.
type ServiceError struct {
	Code     string
	Category string
	CategoryNumber int32
	Message  string
}

// TransactionErrorInfoResponse wraps the server's view of why a transaction
// aborted (spec §3 TransactionErrorInfo).
type TransactionErrorInfoResponse struct {
	Status int32
	Error  *ServiceError
}

// ListTables / GetTableMetadata ------------------------------------------------

// ListTablesRequest carries no fields; the server lists every table the
// session's current context can see.
type ListTablesRequest struct{}

func (r *ListTablesRequest) Marshal() []byte { return nil }

type ListTablesResponse struct {
	TableNames []string
	Error      *ServiceError
}

type GetTableMetadataRequest struct {
	TableName string
}

type TableMetadataResponse struct {
	TableName string
	Columns   []Column
	Error     *ServiceError
}

// Explain -----------------------------------------------------------------

type ExplainRequest struct {
	SQL string
}

type ExplainByPreparedStatementRequest struct {
	PreparedHandle uint64
	Parameters     []Parameter
}

type ExplainResponse struct {
	FormatID      string
	FormatVersion uint64
	Contents      string
	Error         *ServiceError
}

// Large object -------------------------------------------------------------

type LOBProvider int

const (
	LOBProviderUnknown LOBProvider = iota
	LOBProviderDatastore
	LOBProviderHTTP
)

type LargeObjectReference struct {
	Provider LOBProvider
	ObjectID uint64
}

type OpenLOBRequest struct {
	TransactionHandle uint64
	Reference         LargeObjectReference
}

type CopyLOBToRequest struct {
	TransactionHandle uint64
	Reference         LargeObjectReference
	DestinationPath   string
}

type LOBPathResponse struct {
	ServerPath string
	Error      *ServiceError
}
