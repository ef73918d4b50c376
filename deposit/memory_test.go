package deposit

import (
	"testing"
	"time"
)

func seed(t *testing.T) (*MemoryDB, *Client, *Collection) {
	db := NewMemoryDB()
	col := &Collection{Name: "hal"}
	if err := db.UpsertCollection(col); err != nil {
		t.Fatal(err)
	}
	client := &Client{
		Username:    "hal",
		Secret:      "hunter2",
		Collections: []int64{col.ID},
		ProviderURL: "https://hal.example.org",
	}
	if err := db.UpsertClient(client); err != nil {
		t.Fatal(err)
	}
	return db, client, col
}

func TestMutateGuardsTransitions(t *testing.T) {
	db, client, col := seed(t)
	d := &Deposit{ClientID: client.ID, CollectionID: col.ID, Status: StatusPartial, ReceptionDate: time.Now()}
	if err := db.CreateDeposit(d); err != nil {
		t.Fatal(err)
	}

	// a legal edge goes through
	_, err := db.Mutate(d.ID, func(d *Deposit) error {
		d.Status = StatusDeposited
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// an illegal edge is refused and nothing is written
	_, err = db.Mutate(d.ID, func(d *Deposit) error {
		d.Status = StatusDone
		return nil
	})
	if err != ErrBadTransition {
		t.Errorf("received %v, expected %v", err, ErrBadTransition)
	}
	cur, _ := db.Deposit(d.ID)
	if cur.Status != StatusDeposited {
		t.Errorf("status %v, expected %v after refused mutate", cur.Status, StatusDeposited)
	}

	// an error from fn is passed through and nothing is written
	_, err = db.Mutate(d.ID, func(d *Deposit) error {
		d.SWHID = "should not persist"
		return ErrNotFound
	})
	if err != ErrNotFound {
		t.Errorf("received %v, expected %v", err, ErrNotFound)
	}
	cur, _ = db.Deposit(d.ID)
	if cur.SWHID != "" {
		t.Error("refused mutate wrote data")
	}
}

func TestRequestOrdering(t *testing.T) {
	db, client, col := seed(t)
	d := &Deposit{ClientID: client.ID, CollectionID: col.ID, Status: StatusPartial, ReceptionDate: time.Now()}
	if err := db.CreateDeposit(d); err != nil {
		t.Fatal(err)
	}
	names := []string{"a.zip", "b.zip", "c.zip"}
	for _, n := range names {
		r := &Request{DepositID: d.ID, Type: RequestArchive, ArchiveName: n, Date: time.Now()}
		if err := db.AddRequest(r); err != nil {
			t.Fatal(err)
		}
	}
	reqs, err := db.Requests(d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 3 {
		t.Fatalf("received %d requests, expected 3", len(reqs))
	}
	for i := range reqs {
		if reqs[i].ArchiveName != names[i] {
			t.Errorf("request %d is %q, expected %q", i, reqs[i].ArchiveName, names[i])
		}
		if i > 0 && reqs[i].ID <= reqs[i-1].ID {
			t.Error("request ids are not strictly increasing")
		}
	}

	// deleting one row leaves the others in order
	if err := db.DeleteRequest(reqs[1].ID); err != nil {
		t.Fatal(err)
	}
	reqs, _ = db.Requests(d.ID)
	if len(reqs) != 2 || reqs[0].ArchiveName != "a.zip" || reqs[1].ArchiveName != "c.zip" {
		t.Errorf("after delete the requests are %v", reqs)
	}
}

func TestLastDoneDeposit(t *testing.T) {
	db, client, col := seed(t)
	mkdone := func() *Deposit {
		d := &Deposit{ClientID: client.ID, CollectionID: col.ID, ExternalID: "proj", Status: StatusDeposited, ReceptionDate: time.Now()}
		db.CreateDeposit(d)
		db.Mutate(d.ID, func(d *Deposit) error { d.Status = StatusVerified; return nil })
		db.Mutate(d.ID, func(d *Deposit) error { d.Status = StatusLoading; return nil })
		db.Mutate(d.ID, func(d *Deposit) error { d.Status = StatusDone; return nil })
		return d
	}
	if _, err := db.LastDoneDeposit(client.ID, "proj"); err != ErrNotFound {
		t.Errorf("received %v, expected %v", err, ErrNotFound)
	}
	mkdone()
	second := mkdone()
	parent, err := db.LastDoneDeposit(client.ID, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if parent.ID != second.ID {
		t.Errorf("parent id %d, expected the newest done deposit %d", parent.ID, second.ID)
	}
}

func TestPagination(t *testing.T) {
	db, client, col := seed(t)
	for i := 0; i < 5; i++ {
		d := &Deposit{ClientID: client.ID, CollectionID: col.ID, Status: StatusPartial, ReceptionDate: time.Now()}
		db.CreateDeposit(d)
	}
	page, total, err := db.DepositsByCollection(col.ID, client.ID, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(page) != 2 {
		t.Errorf("received %d of %d, expected 2 of 5", len(page), total)
	}
	page, total, _ = db.DepositsByCollection(col.ID, client.ID, 10, 2)
	if total != 5 || len(page) != 0 {
		t.Errorf("past-the-end page returned %d items", len(page))
	}
}
