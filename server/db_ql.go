package server

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/cznic/ql/driver"

	"github.com/swordd/depositd/deposit"
)

// This file implements the deposit data store on the QL embedded database.
// It is intended for development servers and tests, so nothing external is
// needed to bring a deposit server up.

type qlDB struct {
	db *sql.DB

	// ql has no SELECT ... FOR UPDATE, so Mutate serializes here
	m sync.Mutex
}

var _ deposit.DB = &qlDB{}

const qlInit = `
	CREATE TABLE IF NOT EXISTS clients (
		username string,
		secret string,
		collections string,
		provider_url string,
		domain string
	);
	CREATE INDEX IF NOT EXISTS clientsusername ON clients (username);
	CREATE TABLE IF NOT EXISTS collections (
		name string
	);
	CREATE TABLE IF NOT EXISTS deposits (
		client_id int64,
		collection_id int64,
		external_id string,
		reception_date time,
		complete_date time,
		status string,
		status_detail string,
		origin_url string,
		parent_id int64,
		swhid string,
		load_task_id string
	);
	CREATE INDEX IF NOT EXISTS depositsstatus ON deposits (status);
	CREATE TABLE IF NOT EXISTS requests (
		deposit_id int64,
		type string,
		date time,
		archive_name string,
		archive_key string,
		archive_size int64,
		archive_md5 string,
		raw_metadata string
	);
	CREATE INDEX IF NOT EXISTS requestsdeposit ON requests (deposit_id);
	CREATE TABLE IF NOT EXISTS temporary_archives (
		path string,
		created time
	);
`

// NewQlDB makes a QL backed deposit data store. filename is the name of the
// file to save the database to. The filename "memory" means to keep
// everything in memory.
func NewQlDB(filename string) deposit.DB {
	var db *sql.DB
	var err error
	if filename == "memory" {
		db, err = sql.Open("ql-mem", "mem.db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil
	}
	return &qlDB{db: db}
}

func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}

const qlDepositColumns = `id(), client_id, collection_id, external_id,
	reception_date, complete_date, status, status_detail, origin_url,
	parent_id, swhid, load_task_id`

func qlScanDeposit(row scanner) (*deposit.Deposit, error) {
	var d deposit.Deposit
	var status, detail string
	var parent int64
	err := row.Scan(&d.ID, &d.ClientID, &d.CollectionID, &d.ExternalID,
		&d.ReceptionDate, &d.CompleteDate, &status, &detail, &d.OriginURL,
		&parent, &d.SWHID, &d.LoadTaskID)
	if err != nil {
		return nil, err
	}
	d.Status = deposit.ParseStatus(status)
	d.StatusDetail = unmarshalDetail(detail)
	if parent != 0 {
		d.ParentID = &parent
	}
	return &d, nil
}

func qlDepositArgs(d *deposit.Deposit) []interface{} {
	var parent int64
	if d.ParentID != nil {
		parent = *d.ParentID
	}
	return []interface{}{d.ClientID, d.CollectionID, d.ExternalID,
		d.ReceptionDate, d.CompleteDate, d.Status.String(),
		marshalDetail(d.StatusDetail), d.OriginURL, parent, d.SWHID,
		d.LoadTaskID}
}

func (qc *qlDB) ClientByUsername(username string) (*deposit.Client, error) {
	const query = `SELECT id(), username, secret, collections, provider_url, domain
		FROM clients WHERE username == ?1 LIMIT 1`
	return qlScanClient(qc.db.QueryRow(query, username))
}

func (qc *qlDB) Client(id int64) (*deposit.Client, error) {
	const query = `SELECT id(), username, secret, collections, provider_url, domain
		FROM clients WHERE id() == ?1 LIMIT 1`
	return qlScanClient(qc.db.QueryRow(query, id))
}

func qlScanClient(row scanner) (*deposit.Client, error) {
	var c deposit.Client
	var collections string
	err := row.Scan(&c.ID, &c.Username, &c.Secret, &collections,
		&c.ProviderURL, &c.Domain)
	if err == sql.ErrNoRows {
		return nil, deposit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Collections = unmarshalIDList(collections)
	return &c, nil
}

func (qc *qlDB) UpsertClient(c *deposit.Client) error {
	if c.ID == 0 {
		if existing, err := qc.ClientByUsername(c.Username); err == nil {
			c.ID = existing.ID
		}
	}
	if c.ID == 0 {
		const query = `INSERT INTO clients VALUES (?1, ?2, ?3, ?4, ?5)`
		result, err := performExec(qc.db, query, c.Username, c.Secret,
			marshalIDList(c.Collections), c.ProviderURL, c.Domain)
		if err != nil {
			return err
		}
		c.ID, err = result.LastInsertId()
		return err
	}
	const query = `UPDATE clients SET username = ?2, secret = ?3,
		collections = ?4, provider_url = ?5, domain = ?6 WHERE id() == ?1`
	_, err := performExec(qc.db, query, c.ID, c.Username, c.Secret,
		marshalIDList(c.Collections), c.ProviderURL, c.Domain)
	return err
}

func (qc *qlDB) CollectionByName(name string) (*deposit.Collection, error) {
	return qlScanCollection(qc.db.QueryRow(
		`SELECT id(), name FROM collections WHERE name == ?1 LIMIT 1`, name))
}

func (qc *qlDB) Collection(id int64) (*deposit.Collection, error) {
	return qlScanCollection(qc.db.QueryRow(
		`SELECT id(), name FROM collections WHERE id() == ?1 LIMIT 1`, id))
}

func qlScanCollection(row scanner) (*deposit.Collection, error) {
	var col deposit.Collection
	err := row.Scan(&col.ID, &col.Name)
	if err == sql.ErrNoRows {
		return nil, deposit.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &col, nil
}

func (qc *qlDB) CollectionsForClient(clientID int64) ([]deposit.Collection, error) {
	client, err := qc.Client(clientID)
	if err != nil {
		return nil, err
	}
	var result []deposit.Collection
	for _, id := range client.Collections {
		col, err := qc.Collection(id)
		if err == deposit.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, *col)
	}
	return result, nil
}

func (qc *qlDB) UpsertCollection(c *deposit.Collection) error {
	if c.ID == 0 {
		if existing, err := qc.CollectionByName(c.Name); err == nil {
			c.ID = existing.ID
		}
	}
	if c.ID == 0 {
		result, err := performExec(qc.db, `INSERT INTO collections VALUES (?1)`, c.Name)
		if err != nil {
			return err
		}
		c.ID, err = result.LastInsertId()
		return err
	}
	_, err := performExec(qc.db,
		`UPDATE collections SET name = ?2 WHERE id() == ?1`, c.ID, c.Name)
	return err
}

func (qc *qlDB) CreateDeposit(d *deposit.Deposit) error {
	if d.Status != deposit.StatusPartial && d.Status != deposit.StatusDeposited {
		return deposit.ErrBadTransition
	}
	const query = `INSERT INTO deposits VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)`
	result, err := performExec(qc.db, query, qlDepositArgs(d)...)
	if err != nil {
		return err
	}
	d.ID, err = result.LastInsertId()
	return err
}

func (qc *qlDB) Deposit(id int64) (*deposit.Deposit, error) {
	d, err := qlScanDeposit(qc.db.QueryRow(
		`SELECT `+qlDepositColumns+` FROM deposits WHERE id() == ?1 LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return nil, deposit.ErrNotFound
	}
	return d, err
}

func (qc *qlDB) DeleteDeposit(id int64) error {
	result, err := performExec(qc.db, `DELETE FROM deposits WHERE id() == ?1`, id)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		return deposit.ErrNotFound
	}
	_, err = performExec(qc.db, `DELETE FROM requests WHERE deposit_id == ?1`, id)
	return err
}

func (qc *qlDB) Mutate(id int64, fn func(*deposit.Deposit) error) (*deposit.Deposit, error) {
	qc.m.Lock()
	defer qc.m.Unlock()
	d, err := qc.Deposit(id)
	if err != nil {
		return nil, err
	}
	before := d.Status
	if err := fn(d); err != nil {
		return nil, err
	}
	if d.Status != before && !deposit.Allowed(before, d.Status) {
		return nil, deposit.ErrBadTransition
	}
	const query = `UPDATE deposits SET client_id = ?2, collection_id = ?3,
		external_id = ?4, reception_date = ?5, complete_date = ?6,
		status = ?7, status_detail = ?8, origin_url = ?9, parent_id = ?10,
		swhid = ?11, load_task_id = ?12 WHERE id() == ?1`
	args := append([]interface{}{id}, qlDepositArgs(d)...)
	if _, err := performExec(qc.db, query, args...); err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

func (qc *qlDB) DepositsByCollection(collectionID, clientID int64, offset, limit int) ([]deposit.Deposit, int, error) {
	var total int
	err := qc.db.QueryRow(
		`SELECT count(*) FROM deposits WHERE collection_id == ?1 AND client_id == ?2`,
		collectionID, clientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM deposits
		WHERE collection_id == ?1 AND client_id == ?2
		ORDER BY id() LIMIT %d OFFSET %d`, qlDepositColumns, limit, offset)
	rows, err := qc.db.Query(query, collectionID, clientID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []deposit.Deposit
	for rows.Next() {
		d, err := qlScanDeposit(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}
	return result, total, rows.Err()
}

func (qc *qlDB) LastDoneDeposit(clientID int64, externalID string) (*deposit.Deposit, error) {
	d, err := qlScanDeposit(qc.db.QueryRow(
		`SELECT `+qlDepositColumns+` FROM deposits
		WHERE client_id == ?1 AND external_id == ?2 AND status == "done"
		ORDER BY id() DESC LIMIT 1`,
		clientID, externalID))
	if err == sql.ErrNoRows {
		return nil, deposit.ErrNotFound
	}
	return d, err
}

func (qc *qlDB) AddRequest(r *deposit.Request) error {
	const query = `INSERT INTO requests VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)`
	result, err := performExec(qc.db, query, r.DepositID, string(r.Type),
		r.Date, r.ArchiveName, r.ArchiveKey, r.ArchiveSize, r.ArchiveMD5,
		string(r.RawMetadata))
	if err != nil {
		return err
	}
	r.ID, err = result.LastInsertId()
	return err
}

func (qc *qlDB) Requests(depositID int64) ([]deposit.Request, error) {
	rows, err := qc.db.Query(
		`SELECT id(), deposit_id, type, date, archive_name, archive_key,
		archive_size, archive_md5, raw_metadata
		FROM requests WHERE deposit_id == ?1 ORDER BY id()`, depositID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []deposit.Request
	for rows.Next() {
		var r deposit.Request
		var typ, raw string
		err = rows.Scan(&r.ID, &r.DepositID, &typ, &r.Date, &r.ArchiveName,
			&r.ArchiveKey, &r.ArchiveSize, &r.ArchiveMD5, &raw)
		if err != nil {
			return nil, err
		}
		r.Type = deposit.RequestType(typ)
		if raw != "" {
			r.RawMetadata = []byte(raw)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (qc *qlDB) DeleteRequest(id int64) error {
	_, err := performExec(qc.db, `DELETE FROM requests WHERE id() == ?1`, id)
	return err
}

func (qc *qlDB) DeleteRequestsByType(depositID int64, typ deposit.RequestType) error {
	_, err := performExec(qc.db,
		`DELETE FROM requests WHERE deposit_id == ?1 AND type == ?2`,
		depositID, string(typ))
	return err
}

func (qc *qlDB) AddTemporaryArchive(path string, created time.Time) error {
	_, err := performExec(qc.db,
		`INSERT INTO temporary_archives VALUES (?1, ?2)`, path, created)
	return err
}

func (qc *qlDB) TemporaryArchivesBefore(cutoff time.Time) ([]deposit.TemporaryArchive, error) {
	rows, err := qc.db.Query(
		`SELECT id(), path, created FROM temporary_archives
		WHERE created < ?1 ORDER BY id()`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []deposit.TemporaryArchive
	for rows.Next() {
		var ta deposit.TemporaryArchive
		if err := rows.Scan(&ta.ID, &ta.Path, &ta.Created); err != nil {
			return nil, err
		}
		result = append(result, ta)
	}
	return result, rows.Err()
}

func (qc *qlDB) DeleteTemporaryArchive(id int64) error {
	_, err := performExec(qc.db,
		`DELETE FROM temporary_archives WHERE id() == ?1`, id)
	return err
}

func (qc *qlDB) PartialsBefore(cutoff time.Time) ([]deposit.Deposit, error) {
	rows, err := qc.db.Query(
		`SELECT `+qlDepositColumns+` FROM deposits
		WHERE status == "partial" AND reception_date < ?1 ORDER BY id()`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []deposit.Deposit
	for rows.Next() {
		d, err := qlScanDeposit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}
