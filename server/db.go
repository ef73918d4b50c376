package server

import (
	"encoding/json"
	"log"

	"github.com/BurntSushi/migration"

	"github.com/swordd/depositd/deposit"
)

// we need to adapt the migration version functions to work with MySQL and QL
// This code is slightly modified from github.com/BurntSushi/migration

type dbVersion struct {
	// SQL to get the version of this db, returns one row and one column
	GetSQL string
	// SQL to insert a new version of this db. takes one parameter, the new
	// version
	SetSQL string
	// the SQL to create the version table for this db
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	v, err := d.get(tx)
	if err != nil {
		// we assume error means there is no migration table
		log.Println(err.Error())
		return 0, nil
	}
	return v, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if err := d.set(tx, version); err != nil {
		if err := d.createTable(tx); err != nil {
			return err
		}
		return d.set(tx, version)
	}
	return nil
}

func (d dbVersion) get(tx migration.LimitedTx) (int, error) {
	var version int
	r := tx.QueryRow(d.GetSQL)
	if err := r.Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func (d dbVersion) set(tx migration.LimitedTx, version int) error {
	_, err := tx.Exec(d.SetSQL, version)
	return err
}

func (d dbVersion) createTable(tx migration.LimitedTx) error {
	_, err := tx.Exec(d.CreateSQL)
	if err == nil {
		err = d.set(tx, 0)
	}
	return err
}

// The structured columns are stored serialized: the collection membership of
// a client as a JSON list of ids, the status detail of a deposit as the JSON
// of its Detail.

func marshalDetail(d *deposit.Detail) string {
	if d == nil {
		return ""
	}
	b, err := json.Marshal(d)
	if err != nil {
		log.Println("marshal detail:", err)
		return ""
	}
	return string(b)
}

func unmarshalDetail(s string) *deposit.Detail {
	if s == "" {
		return nil
	}
	d := new(deposit.Detail)
	if err := json.Unmarshal([]byte(s), d); err != nil {
		log.Println("unmarshal detail:", err)
		return nil
	}
	return d
}

func marshalIDList(ids []int64) string {
	b, err := json.Marshal(ids)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalIDList(s string) []int64 {
	if s == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		log.Println("unmarshal id list:", err)
		return nil
	}
	return ids
}
