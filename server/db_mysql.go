package server

import (
	"database/sql"
	"log"
	"time"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"

	"github.com/swordd/depositd/deposit"
)

// This file implements the deposit data store on MySQL, the production
// backend.

type msqlDB struct {
	db *sql.DB
}

var _ deposit.DB = &msqlDB{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
}

// Adapt the schema versioning for MySQL

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMysqlDB connects to a MySQL database and returns a deposit data store
// backed by it. The dial string needs parseTime=true.
func NewMysqlDB(dial string) (deposit.DB, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &msqlDB{db: db}, nil
}

const msqlDepositColumns = `id, client_id, collection_id, external_id,
	reception_date, complete_date, status, status_detail, origin_url,
	parent_id, swhid, load_task_id`

type scanner interface {
	Scan(dest ...interface{}) error
}

func msqlScanDeposit(row scanner) (*deposit.Deposit, error) {
	var d deposit.Deposit
	var status, detail string
	var complete mysql.NullTime
	var parent sql.NullInt64
	err := row.Scan(&d.ID, &d.ClientID, &d.CollectionID, &d.ExternalID,
		&d.ReceptionDate, &complete, &status, &detail, &d.OriginURL,
		&parent, &d.SWHID, &d.LoadTaskID)
	if err != nil {
		return nil, err
	}
	d.Status = deposit.ParseStatus(status)
	d.StatusDetail = unmarshalDetail(detail)
	if complete.Valid {
		d.CompleteDate = complete.Time
	}
	if parent.Valid {
		pid := parent.Int64
		d.ParentID = &pid
	}
	return &d, nil
}

func msqlDepositArgs(d *deposit.Deposit) []interface{} {
	var complete mysql.NullTime
	if !d.CompleteDate.IsZero() {
		complete = mysql.NullTime{Time: d.CompleteDate, Valid: true}
	}
	var parent sql.NullInt64
	if d.ParentID != nil {
		parent = sql.NullInt64{Int64: *d.ParentID, Valid: true}
	}
	return []interface{}{d.ClientID, d.CollectionID, d.ExternalID,
		d.ReceptionDate, complete, d.Status.String(),
		marshalDetail(d.StatusDetail), d.OriginURL, parent, d.SWHID,
		d.LoadTaskID}
}

func (ms *msqlDB) ClientByUsername(username string) (*deposit.Client, error) {
	const query = `SELECT id, username, secret, collections, provider_url, domain
		FROM clients WHERE username = ? LIMIT 1`
	return msqlScanClient(ms.db.QueryRow(query, username))
}

func (ms *msqlDB) Client(id int64) (*deposit.Client, error) {
	const query = `SELECT id, username, secret, collections, provider_url, domain
		FROM clients WHERE id = ? LIMIT 1`
	return msqlScanClient(ms.db.QueryRow(query, id))
}

func msqlScanClient(row scanner) (*deposit.Client, error) {
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

func (ms *msqlDB) UpsertClient(c *deposit.Client) error {
	if c.ID == 0 {
		if existing, err := ms.ClientByUsername(c.Username); err == nil {
			c.ID = existing.ID
		}
	}
	if c.ID == 0 {
		const query = `INSERT INTO clients (username, secret, collections, provider_url, domain)
			VALUES (?, ?, ?, ?, ?)`
		result, err := ms.db.Exec(query, c.Username, c.Secret,
			marshalIDList(c.Collections), c.ProviderURL, c.Domain)
		if err != nil {
			return err
		}
		c.ID, err = result.LastInsertId()
		return err
	}
	const query = `UPDATE clients SET username = ?, secret = ?, collections = ?,
		provider_url = ?, domain = ? WHERE id = ?`
	_, err := ms.db.Exec(query, c.Username, c.Secret,
		marshalIDList(c.Collections), c.ProviderURL, c.Domain, c.ID)
	return err
}

func (ms *msqlDB) CollectionByName(name string) (*deposit.Collection, error) {
	const query = `SELECT id, name FROM collections WHERE name = ? LIMIT 1`
	return msqlScanCollection(ms.db.QueryRow(query, name))
}

func (ms *msqlDB) Collection(id int64) (*deposit.Collection, error) {
	const query = `SELECT id, name FROM collections WHERE id = ? LIMIT 1`
	return msqlScanCollection(ms.db.QueryRow(query, id))
}

func msqlScanCollection(row scanner) (*deposit.Collection, error) {
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

func (ms *msqlDB) CollectionsForClient(clientID int64) ([]deposit.Collection, error) {
	client, err := ms.Client(clientID)
	if err != nil {
		return nil, err
	}
	var result []deposit.Collection
	for _, id := range client.Collections {
		col, err := ms.Collection(id)
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

func (ms *msqlDB) UpsertCollection(c *deposit.Collection) error {
	if c.ID == 0 {
		if existing, err := ms.CollectionByName(c.Name); err == nil {
			c.ID = existing.ID
		}
	}
	if c.ID == 0 {
		result, err := ms.db.Exec(`INSERT INTO collections (name) VALUES (?)`, c.Name)
		if err != nil {
			return err
		}
		c.ID, err = result.LastInsertId()
		return err
	}
	_, err := ms.db.Exec(`UPDATE collections SET name = ? WHERE id = ?`, c.Name, c.ID)
	return err
}

func (ms *msqlDB) CreateDeposit(d *deposit.Deposit) error {
	if d.Status != deposit.StatusPartial && d.Status != deposit.StatusDeposited {
		return deposit.ErrBadTransition
	}
	const query = `INSERT INTO deposits (client_id, collection_id, external_id,
		reception_date, complete_date, status, status_detail, origin_url,
		parent_id, swhid, load_task_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := ms.db.Exec(query, msqlDepositArgs(d)...)
	if err != nil {
		return err
	}
	d.ID, err = result.LastInsertId()
	return err
}

func (ms *msqlDB) Deposit(id int64) (*deposit.Deposit, error) {
	d, err := msqlScanDeposit(ms.db.QueryRow(
		`SELECT `+msqlDepositColumns+` FROM deposits WHERE id = ? LIMIT 1`, id))
	if err == sql.ErrNoRows {
		return nil, deposit.ErrNotFound
	}
	return d, err
}

func (ms *msqlDB) DeleteDeposit(id int64) error {
	result, err := ms.db.Exec(`DELETE FROM deposits WHERE id = ?`, id)
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
	_, err = ms.db.Exec(`DELETE FROM requests WHERE deposit_id = ?`, id)
	return err
}

// Mutate serializes concurrent mutations of the same deposit with
// SELECT ... FOR UPDATE.
func (ms *msqlDB) Mutate(id int64, fn func(*deposit.Deposit) error) (*deposit.Deposit, error) {
	tx, err := ms.db.Begin()
	if err != nil {
		return nil, err
	}
	d, err := msqlScanDeposit(tx.QueryRow(
		`SELECT `+msqlDepositColumns+` FROM deposits WHERE id = ? FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, deposit.ErrNotFound
	}
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	before := d.Status
	if err := fn(d); err != nil {
		tx.Rollback()
		return nil, err
	}
	if d.Status != before && !deposit.Allowed(before, d.Status) {
		tx.Rollback()
		return nil, deposit.ErrBadTransition
	}
	const query = `UPDATE deposits SET client_id = ?, collection_id = ?,
		external_id = ?, reception_date = ?, complete_date = ?, status = ?,
		status_detail = ?, origin_url = ?, parent_id = ?, swhid = ?,
		load_task_id = ? WHERE id = ?`
	args := append(msqlDepositArgs(d), id)
	if _, err := tx.Exec(query, args...); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

func (ms *msqlDB) DepositsByCollection(collectionID, clientID int64, offset, limit int) ([]deposit.Deposit, int, error) {
	var total int
	err := ms.db.QueryRow(
		`SELECT count(*) FROM deposits WHERE collection_id = ? AND client_id = ?`,
		collectionID, clientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := ms.db.Query(
		`SELECT `+msqlDepositColumns+` FROM deposits
		WHERE collection_id = ? AND client_id = ?
		ORDER BY id LIMIT ? OFFSET ?`,
		collectionID, clientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var result []deposit.Deposit
	for rows.Next() {
		d, err := msqlScanDeposit(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}
	return result, total, rows.Err()
}

func (ms *msqlDB) LastDoneDeposit(clientID int64, externalID string) (*deposit.Deposit, error) {
	d, err := msqlScanDeposit(ms.db.QueryRow(
		`SELECT `+msqlDepositColumns+` FROM deposits
		WHERE client_id = ? AND external_id = ? AND status = "done"
		ORDER BY id DESC LIMIT 1`,
		clientID, externalID))
	if err == sql.ErrNoRows {
		return nil, deposit.ErrNotFound
	}
	return d, err
}

func (ms *msqlDB) AddRequest(r *deposit.Request) error {
	const query = `INSERT INTO requests (deposit_id, type, date, archive_name,
		archive_key, archive_size, archive_md5, raw_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := ms.db.Exec(query, r.DepositID, string(r.Type), r.Date,
		r.ArchiveName, r.ArchiveKey, r.ArchiveSize, r.ArchiveMD5,
		string(r.RawMetadata))
	if err != nil {
		return err
	}
	r.ID, err = result.LastInsertId()
	return err
}

func (ms *msqlDB) Requests(depositID int64) ([]deposit.Request, error) {
	rows, err := ms.db.Query(
		`SELECT id, deposit_id, type, date, archive_name, archive_key,
		archive_size, archive_md5, raw_metadata
		FROM requests WHERE deposit_id = ? ORDER BY id`, depositID)
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

func (ms *msqlDB) DeleteRequest(id int64) error {
	_, err := ms.db.Exec(`DELETE FROM requests WHERE id = ?`, id)
	return err
}

func (ms *msqlDB) DeleteRequestsByType(depositID int64, typ deposit.RequestType) error {
	_, err := ms.db.Exec(`DELETE FROM requests WHERE deposit_id = ? AND type = ?`,
		depositID, string(typ))
	return err
}

func (ms *msqlDB) AddTemporaryArchive(path string, created time.Time) error {
	_, err := ms.db.Exec(
		`INSERT INTO temporary_archives (path, created) VALUES (?, ?)`,
		path, created)
	return err
}

func (ms *msqlDB) TemporaryArchivesBefore(cutoff time.Time) ([]deposit.TemporaryArchive, error) {
	rows, err := ms.db.Query(
		`SELECT id, path, created FROM temporary_archives
		WHERE created < ? ORDER BY id`, cutoff)
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

func (ms *msqlDB) DeleteTemporaryArchive(id int64) error {
	_, err := ms.db.Exec(`DELETE FROM temporary_archives WHERE id = ?`, id)
	return err
}

func (ms *msqlDB) PartialsBefore(cutoff time.Time) ([]deposit.Deposit, error) {
	rows, err := ms.db.Query(
		`SELECT `+msqlDepositColumns+` FROM deposits
		WHERE status = "partial" AND reception_date < ? ORDER BY id`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []deposit.Deposit
	for rows.Next() {
		d, err := msqlScanDeposit(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS clients (
		id int PRIMARY KEY AUTO_INCREMENT,
		username varchar(255),
		secret varchar(255),
		collections text,
		provider_url text,
		domain varchar(255),
		UNIQUE INDEX clients_username (username))`,

		`CREATE TABLE IF NOT EXISTS collections (
		id int PRIMARY KEY AUTO_INCREMENT,
		name varchar(255),
		UNIQUE INDEX collections_name (name))`,

		`CREATE TABLE IF NOT EXISTS deposits (
		id int PRIMARY KEY AUTO_INCREMENT,
		client_id int,
		collection_id int,
		external_id varchar(255),
		reception_date datetime,
		complete_date datetime NULL,
		status varchar(16),
		status_detail longtext,
		origin_url text,
		parent_id int NULL,
		swhid varchar(255),
		load_task_id varchar(64),
		INDEX deposits_client (client_id),
		INDEX deposits_external (external_id),
		INDEX deposits_status (status))`,

		`CREATE TABLE IF NOT EXISTS requests (
		id int PRIMARY KEY AUTO_INCREMENT,
		deposit_id int,
		type varchar(16),
		date datetime,
		archive_name text,
		archive_key varchar(255),
		archive_size bigint,
		archive_md5 varchar(32),
		raw_metadata longtext,
		INDEX requests_deposit (deposit_id))`,

		`CREATE TABLE IF NOT EXISTS temporary_archives (
		id int PRIMARY KEY AUTO_INCREMENT,
		path text,
		created datetime)`,
	}
	return execlist(tx, s)
}

// execlist exec's each item in the list, return if there is an error.
// Used to work around mysql driver not handling compound exec statements.
func execlist(tx migration.LimitedTx, stms []string) error {
	var err error
	for _, s := range stms {
		_, err = tx.Exec(s)
		if err != nil {
			break
		}
	}
	return err
}
