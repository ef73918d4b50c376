package server

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"github.com/swordd/depositd/deposit"
	"github.com/swordd/depositd/sword"
)

// serviceDocumentPath is the pseudo-collection name serving the service
// document. It cannot be registered as its own route since httprouter will
// not mix a static segment with the :collection wildcard.
const serviceDocumentPath = "servicedocument"

// publicAuthWrapper authenticates the request against the client table and
// verifies the client may touch the collection in the URL. The username is
// appended to the route parameters for the handler.
func (s *RESTServer) publicAuthWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		client, serr := s.authenticate(r)
		if serr != nil {
			writeError(w, serr)
			return
		}
		name := ps.ByName("collection")
		if name != serviceDocumentPath {
			col, err := s.DB.CollectionByName(name)
			if err != nil {
				writeError(w, dberror(err))
				return
			}
			// a collection the client is not a member of is
			// indistinguishable from a missing one
			if !clientOwns(client, col.ID) {
				writeError(w, sword.NotFound())
				return
			}
		}
		ps = append(ps, httprouter.Param{Key: "username", Value: client.Username})
		handler(w, r, ps)
	}
}

// privateAuthWrapper authenticates the ingestion side against the static
// user list from the configuration.
func (s *RESTServer) privateAuthWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		username, password, ok := r.BasicAuth()
		if ok {
			secret, known := s.PrivateUsers[username]
			ok = known && subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
		}
		if !ok {
			writeError(w, unauthorized())
			return
		}
		handler(w, r, ps)
	}
}

func (s *RESTServer) authenticate(r *http.Request) (*deposit.Client, *sword.Error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, unauthorized()
	}
	client, err := s.DB.ClientByUsername(username)
	if err == deposit.ErrNotFound {
		return nil, unauthorized()
	}
	if err != nil {
		return nil, dberror(err)
	}
	if subtle.ConstantTimeCompare([]byte(client.Secret), []byte(password)) != 1 {
		return nil, unauthorized()
	}
	return client, nil
}

func clientOwns(client *deposit.Client, collectionID int64) bool {
	for _, id := range client.Collections {
		if id == collectionID {
			return true
		}
	}
	return false
}

// findClient refetches the authenticated client recorded by the wrapper.
func (s *RESTServer) findClient(ps httprouter.Params) (*deposit.Client, *sword.Error) {
	client, err := s.DB.ClientByUsername(ps.ByName("username"))
	if err != nil {
		return nil, dberror(err)
	}
	return client, nil
}

// findDeposit resolves the :id parameter and verifies the deposit belongs to
// the collection in the URL. Used by the private handlers, which are not
// scoped to a client.
func (s *RESTServer) findDeposit(ps httprouter.Params) (*deposit.Deposit, *sword.Error) {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return nil, sword.NotFound()
	}
	d, err2 := s.DB.Deposit(id)
	if err2 != nil {
		return nil, dberror(err2)
	}
	col, err2 := s.DB.Collection(d.CollectionID)
	if err2 != nil {
		return nil, dberror(err2)
	}
	if col.Name != ps.ByName("collection") {
		return nil, sword.NotFound()
	}
	return d, nil
}

// findClientDeposit additionally verifies the authenticated client owns the
// deposit. Used by the public handlers.
func (s *RESTServer) findClientDeposit(ps httprouter.Params) (*deposit.Client, *deposit.Deposit, *sword.Error) {
	client, serr := s.findClient(ps)
	if serr != nil {
		return nil, nil, serr
	}
	d, serr := s.findDeposit(ps)
	if serr != nil {
		return nil, nil, serr
	}
	if d.ClientID != client.ID {
		return nil, nil, sword.NotFound()
	}
	return client, d, nil
}
