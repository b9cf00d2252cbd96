package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"custodia.network/ctd/internal/types"
)

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestItemCreationAndTransferFlow(t *testing.T) {
	svc, mux := setupTest(t)

	rec := doJSON(t, mux, http.MethodPost, "/items",
		`{"item_id":"EV-1","description":"knife","actor":"A","location":"scene","item_type":"Physical"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Creation returned %d: %s", rec.Code, rec.Body.String())
	}

	var created struct {
		Success     bool              `json:"success"`
		Block       types.Block       `json:"block"`
		Transaction types.Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode creation response: %v", err)
	}
	if !created.Success || created.Block.Index != 1 {
		t.Errorf("Unexpected creation response: %+v", created)
	}
	if created.Transaction.Node != "node-test" {
		t.Errorf("Transaction not stamped with node id: %+v", created.Transaction)
	}
	if svc.ledger.Length() != 2 {
		t.Errorf("Expected chain length 2, got %d", svc.ledger.Length())
	}

	rec = doJSON(t, mux, http.MethodPost, "/transfers",
		`{"item_id":"EV-1","from_actor":"A","to_actor":"B","reason":"lab"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Transfer returned %d: %s", rec.Code, rec.Body.String())
	}
	if svc.ledger.Length() != 3 {
		t.Errorf("Expected chain length 3, got %d", svc.ledger.Length())
	}

	rec = doJSON(t, mux, http.MethodGet, "/items/EV-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Item lookup returned %d", rec.Code)
	}
	var item types.Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("Failed to decode item: %v", err)
	}
	if item.CurrentCustodian != "B" {
		t.Errorf("Expected custodian B, got %q", item.CurrentCustodian)
	}

	rec = doJSON(t, mux, http.MethodGet, "/items/EV-1/transfers", "")
	var transfers struct {
		Transfers []types.Transfer `json:"transfers"`
		Count     int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &transfers); err != nil {
		t.Fatalf("Failed to decode transfers: %v", err)
	}
	if transfers.Count != 1 {
		t.Errorf("Expected 1 transfer row, got %d", transfers.Count)
	}

	rec = doJSON(t, mux, http.MethodGet, "/items/EV-1/history", "")
	var history struct {
		ItemID  string               `json:"item_id"`
		History []types.HistoryEntry `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(history.History) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(history.History))
	}
}

func TestItemCreationRejectsMissingFields(t *testing.T) {
	svc, mux := setupTest(t)

	rec := doJSON(t, mux, http.MethodPost, "/items", `{"description":"knife"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", rec.Code)
	}
	if svc.ledger.Length() != 1 {
		t.Errorf("Rejected submission changed chain length to %d", svc.ledger.Length())
	}
}

func TestItemNotFound(t *testing.T) {
	_, mux := setupTest(t)

	rec := doJSON(t, mux, http.MethodGet, "/items/EV-MISSING", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestListItems(t *testing.T) {
	_, mux := setupTest(t)

	doJSON(t, mux, http.MethodPost, "/items", `{"item_id":"EV-1","description":"a","actor":"A"}`)
	doJSON(t, mux, http.MethodPost, "/items", `{"item_id":"EV-2","description":"b","actor":"B"}`)

	rec := doJSON(t, mux, http.MethodGet, "/items", "")
	var list struct {
		Items []types.Item `json:"items"`
		Count int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if list.Count != 2 {
		t.Errorf("Expected 2 items, got %d", list.Count)
	}
}
