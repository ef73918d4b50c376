package deposit

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a deposit, client, or collection does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrBadTransition is returned by Mutate when the requested status
	// change is not a permitted edge of the lifecycle.
	ErrBadTransition = errors.New("status transition not permitted")
)

// DB is the data store used by the protocol engine. Implementations must
// serialize Mutate calls on the same deposit, so concurrent protocol
// requests resolve to one winner and one refusal.
type DB interface {
	// client and collection reads. The admin tooling owns writes; the
	// Upsert calls exist so a development server can seed itself from
	// its configuration file.
	ClientByUsername(username string) (*Client, error)
	Client(id int64) (*Client, error)
	UpsertClient(c *Client) error
	CollectionByName(name string) (*Collection, error)
	Collection(id int64) (*Collection, error)
	CollectionsForClient(clientID int64) ([]Collection, error)
	UpsertCollection(c *Collection) error

	// CreateDeposit inserts d and assigns its id. Ids are server assigned
	// and monotonically increasing.
	CreateDeposit(d *Deposit) error
	Deposit(id int64) (*Deposit, error)
	DeleteDeposit(id int64) error

	// Mutate loads the deposit row for update, applies fn, and saves the
	// result, all inside one transaction. If fn returns an error nothing
	// is written and the error is passed through. If fn changes the
	// status along an edge not in the transition table, ErrBadTransition
	// is returned and nothing is written.
	Mutate(id int64, fn func(*Deposit) error) (*Deposit, error)

	// DepositsByCollection returns one page of the client's deposits in
	// the collection ordered by id ascending, along with the total count.
	DepositsByCollection(collectionID, clientID int64, offset, limit int) ([]Deposit, int, error)

	// LastDoneDeposit returns the newest done deposit for the client with
	// the given external id, or ErrNotFound.
	LastDoneDeposit(clientID int64, externalID string) (*Deposit, error)

	// request rows. AddRequest assigns a strictly increasing id. The
	// delete calls ignore rows that are already gone.
	AddRequest(r *Request) error
	Requests(depositID int64) ([]Request, error)
	DeleteRequest(id int64) error
	DeleteRequestsByType(depositID int64, typ RequestType) error

	// temporary aggregation workspaces awaiting the janitor.
	AddTemporaryArchive(path string, created time.Time) error
	TemporaryArchivesBefore(cutoff time.Time) ([]TemporaryArchive, error)
	DeleteTemporaryArchive(id int64) error

	// PartialsBefore lists partial deposits received before the cutoff,
	// for the janitor's expiry sweep.
	PartialsBefore(cutoff time.Time) ([]Deposit, error)
}
