package deposit

import (
	"sort"
	"sync"
	"time"
)

// MemoryDB is an in-memory implementation of DB. It is intended for
// development servers and tests.
type MemoryDB struct {
	m           sync.Mutex
	clients     map[int64]*Client
	collections map[int64]*Collection
	deposits    map[int64]*Deposit
	requests    map[int64]*Request
	temps       map[int64]*TemporaryArchive
	nextID      int64 // shared counter so request ids are strictly increasing
}

var _ DB = &MemoryDB{}

// NewMemoryDB returns a new, empty memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		clients:     make(map[int64]*Client),
		collections: make(map[int64]*Collection),
		deposits:    make(map[int64]*Deposit),
		requests:    make(map[int64]*Request),
		temps:       make(map[int64]*TemporaryArchive),
	}
}

func (db *MemoryDB) newid() int64 {
	db.nextID++
	return db.nextID
}

func (db *MemoryDB) ClientByUsername(username string) (*Client, error) {
	db.m.Lock()
	defer db.m.Unlock()
	for _, c := range db.clients {
		if c.Username == username {
			dup := *c
			return &dup, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) Client(id int64) (*Client, error) {
	db.m.Lock()
	defer db.m.Unlock()
	c, ok := db.clients[id]
	if !ok {
		return nil, ErrNotFound
	}
	dup := *c
	return &dup, nil
}

func (db *MemoryDB) UpsertClient(c *Client) error {
	db.m.Lock()
	defer db.m.Unlock()
	if c.ID == 0 {
		for _, existing := range db.clients {
			if existing.Username == c.Username {
				c.ID = existing.ID
				break
			}
		}
	}
	if c.ID == 0 {
		c.ID = db.newid()
	}
	dup := *c
	db.clients[c.ID] = &dup
	return nil
}

func (db *MemoryDB) CollectionByName(name string) (*Collection, error) {
	db.m.Lock()
	defer db.m.Unlock()
	for _, col := range db.collections {
		if col.Name == name {
			dup := *col
			return &dup, nil
		}
	}
	return nil, ErrNotFound
}

func (db *MemoryDB) Collection(id int64) (*Collection, error) {
	db.m.Lock()
	defer db.m.Unlock()
	col, ok := db.collections[id]
	if !ok {
		return nil, ErrNotFound
	}
	dup := *col
	return &dup, nil
}

func (db *MemoryDB) CollectionsForClient(clientID int64) ([]Collection, error) {
	db.m.Lock()
	defer db.m.Unlock()
	client, ok := db.clients[clientID]
	if !ok {
		return nil, ErrNotFound
	}
	var result []Collection
	for _, id := range client.Collections {
		if col, ok := db.collections[id]; ok {
			result = append(result, *col)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (db *MemoryDB) UpsertCollection(c *Collection) error {
	db.m.Lock()
	defer db.m.Unlock()
	if c.ID == 0 {
		for _, existing := range db.collections {
			if existing.Name == c.Name {
				c.ID = existing.ID
				break
			}
		}
	}
	if c.ID == 0 {
		c.ID = db.newid()
	}
	dup := *c
	db.collections[c.ID] = &dup
	return nil
}

func (db *MemoryDB) CreateDeposit(d *Deposit) error {
	db.m.Lock()
	defer db.m.Unlock()
	if d.Status != StatusPartial && d.Status != StatusDeposited {
		return ErrBadTransition
	}
	d.ID = db.newid()
	dup := *d
	db.deposits[d.ID] = &dup
	return nil
}

func (db *MemoryDB) Deposit(id int64) (*Deposit, error) {
	db.m.Lock()
	defer db.m.Unlock()
	d, ok := db.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	dup := *d
	return &dup, nil
}

func (db *MemoryDB) DeleteDeposit(id int64) error {
	db.m.Lock()
	defer db.m.Unlock()
	if _, ok := db.deposits[id]; !ok {
		return ErrNotFound
	}
	delete(db.deposits, id)
	for rid, r := range db.requests {
		if r.DepositID == id {
			delete(db.requests, rid)
		}
	}
	return nil
}

// Mutate holds the database lock for the duration of fn, which gives the
// same serialization the SQL backends get from SELECT ... FOR UPDATE.
func (db *MemoryDB) Mutate(id int64, fn func(*Deposit) error) (*Deposit, error) {
	db.m.Lock()
	defer db.m.Unlock()
	d, ok := db.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	work := *d
	before := work.Status
	if err := fn(&work); err != nil {
		return nil, err
	}
	if work.Status != before && !Allowed(before, work.Status) {
		return nil, ErrBadTransition
	}
	work.ID = d.ID
	db.deposits[id] = &work
	dup := work
	return &dup, nil
}

func (db *MemoryDB) DepositsByCollection(collectionID, clientID int64, offset, limit int) ([]Deposit, int, error) {
	db.m.Lock()
	defer db.m.Unlock()
	var all []Deposit
	for _, d := range db.deposits {
		if d.CollectionID == collectionID && d.ClientID == clientID {
			all = append(all, *d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (db *MemoryDB) LastDoneDeposit(clientID int64, externalID string) (*Deposit, error) {
	db.m.Lock()
	defer db.m.Unlock()
	var newest *Deposit
	for _, d := range db.deposits {
		if d.ClientID == clientID && d.ExternalID == externalID && d.Status == StatusDone {
			if newest == nil || d.ID > newest.ID {
				newest = d
			}
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	dup := *newest
	return &dup, nil
}

func (db *MemoryDB) AddRequest(r *Request) error {
	db.m.Lock()
	defer db.m.Unlock()
	if _, ok := db.deposits[r.DepositID]; !ok {
		return ErrNotFound
	}
	r.ID = db.newid()
	dup := *r
	db.requests[r.ID] = &dup
	return nil
}

func (db *MemoryDB) Requests(depositID int64) ([]Request, error) {
	db.m.Lock()
	defer db.m.Unlock()
	var result []Request
	for _, r := range db.requests {
		if r.DepositID == depositID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (db *MemoryDB) DeleteRequest(id int64) error {
	db.m.Lock()
	defer db.m.Unlock()
	delete(db.requests, id)
	return nil
}

func (db *MemoryDB) DeleteRequestsByType(depositID int64, typ RequestType) error {
	db.m.Lock()
	defer db.m.Unlock()
	for id, r := range db.requests {
		if r.DepositID == depositID && r.Type == typ {
			delete(db.requests, id)
		}
	}
	return nil
}

func (db *MemoryDB) AddTemporaryArchive(path string, created time.Time) error {
	db.m.Lock()
	defer db.m.Unlock()
	id := db.newid()
	db.temps[id] = &TemporaryArchive{ID: id, Path: path, Created: created}
	return nil
}

func (db *MemoryDB) TemporaryArchivesBefore(cutoff time.Time) ([]TemporaryArchive, error) {
	db.m.Lock()
	defer db.m.Unlock()
	var result []TemporaryArchive
	for _, ta := range db.temps {
		if ta.Created.Before(cutoff) {
			result = append(result, *ta)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (db *MemoryDB) DeleteTemporaryArchive(id int64) error {
	db.m.Lock()
	defer db.m.Unlock()
	delete(db.temps, id)
	return nil
}

func (db *MemoryDB) PartialsBefore(cutoff time.Time) ([]Deposit, error) {
	db.m.Lock()
	defer db.m.Unlock()
	var result []Deposit
	for _, d := range db.deposits {
		if d.Status == StatusPartial && d.ReceptionDate.Before(cutoff) {
			result = append(result, *d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
