package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
	"pharmacy/m/internal/alerts"
	"pharmacy/m/internal/audit"
	"pharmacy/m/internal/auth"
	"pharmacy/m/internal/database"
	"pharmacy/m/internal/lock"
	"pharmacy/m/internal/logging"
	"pharmacy/m/internal/prescriptions"
	"pharmacy/m/internal/sales"
	"pharmacy/m/internal/store"
	"pharmacy/m/internal/testdb"
)

const testJWTSecret = "test-secret"

func setupTestServer(t *testing.T) (*httptest.Server, *store.Store, string) {
	t.Helper()
	st := store.New(testdb.New(t), database.SQLite)
	logger := logging.Discard()
	locker := lock.NewLocal()
	recorder := audit.NewRecorder(st, logger)

	h := New(Deps{
		Store:         st,
		Sales:         sales.NewService(sales.NewRepository(st), locker, recorder, logger),
		Alerts:        alerts.NewService(st, 90, logger),
		Prescriptions: prescriptions.NewService(st, recorder),
		Audit:         recorder,
		Locker:        locker,
		Logger:        logger,
		Secret:        testJWTSecret,
		TokenTTL:      time.Hour,
	})
	server := httptest.NewServer(h.Router())
	t.Cleanup(server.Close)

	createUser(t, st, "admin@example.com", domain.RoleAdmin, nil)
	return server, st, login(t, server, "admin@example.com")
}

func createUser(t *testing.T, st *store.Store, email, role string, pharmacyID *int64) *domain.User {
	t.Helper()
	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	u, err := st.CreateUser(context.Background(), domain.User{Email: email, PasswordHash: hash, Role: role, PharmacyID: pharmacyID})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	return u
}

func login(t *testing.T, server *httptest.Server, email string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": "password"})
	resp, err := http.Post(server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var out authResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Token == "" {
		t.Fatal("empty token from login")
	}
	return out.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call performs a request and decodes the JSON response into out when out is
// not nil. It returns the status code.
func call(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func createDrug(t *testing.T, server *httptest.Server, token, name string) int64 {
	t.Helper()
	var d domain.Drug
	status := call(t, "POST", server.URL+"/inventory/drugs", token, map[string]any{"name": name}, &d)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating drug, got %d", status)
	}
	return d.ID
}

func createBatch(t *testing.T, server *httptest.Server, token string, body map[string]any) domain.InventoryBatch {
	t.Helper()
	var b domain.InventoryBatch
	status := call(t, "POST", server.URL+"/inventory/batches", token, body, &b)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 creating batch, got %d", status)
	}
	return b
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	body, _ = json.Marshal(map[string]string{"email": "nobody@example.com", "password": "password"})
	resp, _ = http.Post(server.URL+"/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown email, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	server, _, _ := setupTestServer(t)

	if status := call(t, "GET", server.URL+"/sales/history", "", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", status)
	}
	if status := call(t, "GET", server.URL+"/sales/history", "garbage", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", status)
	}
}

func TestDeletedProfileRejected(t *testing.T) {
	server, _, _ := setupTestServer(t)
	token, err := auth.GenerateToken(testJWTSecret, domain.User{ID: 9999, Email: "ghost@example.com", Role: domain.RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if status := call(t, "GET", server.URL+"/auth/user", token, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for token without profile, got %d", status)
	}
}

func TestRegisterAndProfile(t *testing.T) {
	server, st, _ := setupTestServer(t)
	p, _ := st.CreatePharmacy(context.Background(), domain.Pharmacy{Name: "North"})

	var reg authResponse
	status := call(t, "POST", server.URL+"/auth/register", "", map[string]any{
		"email":     "Staff@Example.com",
		"password":  "secret1",
		"full_name": "Sam Staff",
	}, &reg)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if reg.User.Role != domain.RoleStaff || reg.User.Email != "staff@example.com" {
		t.Errorf("unexpected profile %+v", reg.User)
	}

	var me domain.User
	if status := call(t, "GET", server.URL+"/auth/user", reg.Token, nil, &me); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if me.PharmacyID != nil {
		t.Errorf("expected a new registrant to have no pharmacy, got %v", *me.PharmacyID)
	}

	status = call(t, "POST", server.URL+"/auth/register", "", map[string]any{
		"email":       "picker@example.com",
		"password":    "secret1",
		"pharmacy_id": p.ID,
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 when choosing a pharmacy at sign-up, got %d", status)
	}
	if _, err := st.GetUserByEmail(context.Background(), "picker@example.com"); err == nil {
		t.Error("expected no profile created for a sign-up naming a pharmacy")
	}

	status = call(t, "POST", server.URL+"/auth/register", "", map[string]any{
		"email":    "staff@example.com",
		"password": "secret1",
	}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", status)
	}

	status = call(t, "POST", server.URL+"/auth/register", "", map[string]any{
		"email":    "not-an-email",
		"password": "secret1",
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid email, got %d", status)
	}
}

func TestRegistrantCannotReachTenantData(t *testing.T) {
	server, st, token := setupTestServer(t)
	a, _ := st.CreatePharmacy(context.Background(), domain.Pharmacy{Name: "A"})
	createUser(t, st, "clerk@a.test", domain.RoleStaff, &a.ID)
	clerk := login(t, server, "clerk@a.test")

	drug := createDrug(t, server, token, "Paracetamol")
	batch := createBatch(t, server, token, map[string]any{
		"drug_id": drug, "quantity": 5, "unit_price": "1", "expiry_date": "2099-01-01", "pharmacy_id": a.ID,
	})
	var sale domain.Sale
	if status := call(t, "POST", server.URL+"/sales/checkout", clerk, map[string]any{
		"items": []map[string]any{{"drug_id": drug, "quantity": 1}},
	}, &sale); status != http.StatusCreated {
		t.Fatalf("expected 201 for clerk checkout, got %d", status)
	}

	var reg authResponse
	if status := call(t, "POST", server.URL+"/auth/register", "", map[string]any{
		"email": "stranger@example.com", "password": "secret1",
	}, &reg); status != http.StatusCreated {
		t.Fatalf("expected 201 for sign-up, got %d", status)
	}
	stranger := reg.Token

	denied := []struct {
		method, path string
		body         any
	}{
		{"GET", "/sales/history", nil},
		{"GET", fmt.Sprintf("/sales/receipt/%d", sale.ID), nil},
		{"POST", "/sales/estimate", map[string]any{"items": []map[string]any{{"drug_id": drug, "quantity": 1}}}},
		{"POST", "/sales/checkout", map[string]any{"items": []map[string]any{{"drug_id": drug, "quantity": 1}}}},
		{"GET", "/inventory/batches", nil},
		{"GET", "/inventory/active-stock", nil},
		{"POST", "/inventory/batches", map[string]any{"drug_id": drug, "quantity": 1, "unit_price": "1", "expiry_date": "2099-01-01"}},
		{"GET", "/prescriptions", nil},
	}
	for _, tc := range denied {
		if status := call(t, tc.method, server.URL+tc.path, stranger, tc.body, nil); status != http.StatusForbidden {
			t.Errorf("%s %s: expected 403 for unassigned user, got %d", tc.method, tc.path, status)
		}
	}

	var settings struct {
		PharmacyID *int64 `json:"pharmacy_id"`
	}
	if status := call(t, "GET", server.URL+"/pharmacies/my-settings", stranger, nil, &settings); status != http.StatusOK || settings.PharmacyID != nil {
		t.Errorf("expected null pharmacy for unassigned user, got %d %+v", status, settings)
	}

	got, _ := st.GetBatch(context.Background(), batch.ID)
	if got.Quantity != 4 {
		t.Errorf("expected only the clerk's sale to touch stock, got %d", got.Quantity)
	}

	var assigned domain.User
	status := call(t, "PUT", fmt.Sprintf("%s/admin/users/%d", server.URL, reg.User.ID), token, map[string]any{"pharmacy_id": a.ID}, &assigned)
	if status != http.StatusOK || assigned.PharmacyID == nil || *assigned.PharmacyID != a.ID || assigned.Role != domain.RoleStaff {
		t.Fatalf("expected assignment to A, got %d %+v", status, assigned)
	}
	var history []domain.Sale
	if status := call(t, "GET", server.URL+"/sales/history", stranger, nil, &history); status != http.StatusOK || len(history) != 1 {
		t.Errorf("expected assigned user to see A's sale, got %d %d", status, len(history))
	}
}

func TestAssignUserRules(t *testing.T) {
	server, st, token := setupTestServer(t)
	ctx := context.Background()
	a, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "A"})
	b, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "B"})
	createUser(t, st, "admin@a.test", domain.RoleAdmin, &a.ID)
	createUser(t, st, "staff@a.test", domain.RoleStaff, &a.ID)
	adminA := login(t, server, "admin@a.test")
	staffA := login(t, server, "staff@a.test")
	newcomer := createUser(t, st, "new@example.com", domain.RoleStaff, nil)
	ofB := createUser(t, st, "staff@b.test", domain.RoleStaff, &b.ID)
	root, _ := st.GetUserByEmail(ctx, "admin@example.com")

	url := func(id int64) string { return fmt.Sprintf("%s/admin/users/%d", server.URL, id) }

	cases := []struct {
		name  string
		token string
		id    int64
		body  map[string]any
		want  int
	}{
		{"staff cannot assign", staffA, newcomer.ID, map[string]any{}, http.StatusForbidden},
		{"pharmacy admin targets another pharmacy", adminA, newcomer.ID, map[string]any{"pharmacy_id": b.ID}, http.StatusForbidden},
		{"pharmacy admin claims another pharmacy's user", adminA, ofB.ID, map[string]any{}, http.StatusForbidden},
		{"pharmacy admin reassigns a super-admin", adminA, root.ID, map[string]any{}, http.StatusForbidden},
		{"unknown pharmacy", token, newcomer.ID, map[string]any{"pharmacy_id": 9999}, http.StatusBadRequest},
		{"staff needs a pharmacy", token, newcomer.ID, map[string]any{"role": "STAFF"}, http.StatusBadRequest},
		{"unknown role", token, newcomer.ID, map[string]any{"pharmacy_id": a.ID, "role": "OWNER"}, http.StatusBadRequest},
		{"unknown user", token, 9999, map[string]any{"pharmacy_id": a.ID}, http.StatusNotFound},
		{"pharmacy admin claims unassigned user", adminA, newcomer.ID, map[string]any{}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if status := call(t, "PUT", url(tc.id), tc.token, tc.body, nil); status != tc.want {
				t.Errorf("expected %d, got %d", tc.want, status)
			}
		})
	}

	claimed, _ := st.GetUser(ctx, newcomer.ID)
	if claimed.PharmacyID == nil || *claimed.PharmacyID != a.ID {
		t.Errorf("expected newcomer in A, got %+v", claimed)
	}
	var logs []domain.AuditLog
	call(t, "GET", server.URL+"/admin/audit-logs?resource=user&action=UPDATE", token, nil, &logs)
	if len(logs) != 1 || logs[0].ResourceID == nil || *logs[0].ResourceID != strconv.FormatInt(newcomer.ID, 10) {
		t.Errorf("expected one user UPDATE audit entry, got %+v", logs)
	}
}

func TestPharmacySettingsEndpoints(t *testing.T) {
	server, st, token := setupTestServer(t)
	ctx := context.Background()
	a, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "A"})
	b, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "B"})
	createUser(t, st, "admin@a.test", domain.RoleAdmin, &a.ID)
	createUser(t, st, "staff@a.test", domain.RoleStaff, &a.ID)
	adminA := login(t, server, "admin@a.test")
	staffA := login(t, server, "staff@a.test")

	var updated domain.Pharmacy
	status := call(t, "PUT", fmt.Sprintf("%s/pharmacies/%d", server.URL, a.ID), adminA, map[string]any{
		"name": "A Street", "address": "1 Main St", "phone": "555",
	}, &updated)
	if status != http.StatusOK || updated.Name != "A Street" || updated.Address != "1 Main St" {
		t.Fatalf("expected update, got %d %+v", status, updated)
	}

	if status := call(t, "PUT", fmt.Sprintf("%s/pharmacies/%d", server.URL, b.ID), adminA, map[string]any{"name": "Mine"}, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 editing another pharmacy, got %d", status)
	}
	if status := call(t, "PUT", fmt.Sprintf("%s/pharmacies/%d", server.URL, a.ID), staffA, map[string]any{"name": "Mine"}, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for staff, got %d", status)
	}
	if status := call(t, "PUT", server.URL+"/pharmacies/9999", token, map[string]any{"name": "Ghost"}, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for missing pharmacy, got %d", status)
	}
	if status := call(t, "PUT", fmt.Sprintf("%s/pharmacies/%d", server.URL, b.ID), token, map[string]any{}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 without a name, got %d", status)
	}

	var logs []domain.AuditLog
	call(t, "GET", server.URL+"/admin/audit-logs?resource=pharmacy&action=UPDATE", token, nil, &logs)
	if len(logs) != 1 || logs[0].ResourceID == nil || *logs[0].ResourceID != strconv.FormatInt(a.ID, 10) {
		t.Errorf("expected one pharmacy UPDATE audit entry, got %+v", logs)
	}

	var settings struct {
		PharmacyID *int64           `json:"pharmacy_id"`
		Pharmacy   *domain.Pharmacy `json:"pharmacy"`
	}
	if status := call(t, "GET", server.URL+"/pharmacies/my-settings", staffA, nil, &settings); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if settings.PharmacyID == nil || *settings.PharmacyID != a.ID || settings.Pharmacy == nil || settings.Pharmacy.Name != "A Street" {
		t.Errorf("unexpected settings %+v", settings)
	}

	var rootSettings map[string]any
	call(t, "GET", server.URL+"/pharmacies/my-settings", token, nil, &rootSettings)
	if v, ok := rootSettings["pharmacy_id"]; !ok || v != nil {
		t.Errorf("expected null pharmacy_id for super-admin, got %v", rootSettings)
	}
}

func TestCheckoutVoidFlow(t *testing.T) {
	server, _, token := setupTestServer(t)
	drug := createDrug(t, server, token, "Paracetamol")
	b1 := createBatch(t, server, token, map[string]any{
		"drug_id": drug, "quantity": 5, "unit_price": "1.50", "expiry_date": "2098-01-01",
	})
	b2 := createBatch(t, server, token, map[string]any{
		"drug_id": drug, "quantity": 10, "unit_price": "2.00", "expiry_date": "2099-01-01",
	})

	var est sales.Estimate
	status := call(t, "POST", server.URL+"/sales/estimate", token, map[string]any{
		"items": []map[string]any{{"drug_id": drug, "quantity": 8}},
	}, &est)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for estimate, got %d", status)
	}
	if !est.Total.Equal(decimal.RequireFromString("13.5")) || len(est.Breakdown) != 2 {
		t.Errorf("unexpected estimate %+v", est)
	}

	var sale domain.Sale
	status = call(t, "POST", server.URL+"/sales/checkout", token, map[string]any{
		"items":           []map[string]any{{"drug_id": drug, "quantity": 8}},
		"discount_amount": 1,
		"customer_name":   "Jane",
	}, &sale)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 for checkout, got %d", status)
	}
	if len(sale.Items) != 2 || *sale.Items[0].BatchID != b1.ID || *sale.Items[1].BatchID != b2.ID {
		t.Fatalf("unexpected sale items %+v", sale.Items)
	}
	if !sale.FinalAmount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("expected final 12.5, got %s", sale.FinalAmount)
	}

	var stockErr map[string]any
	status = call(t, "POST", server.URL+"/sales/checkout", token, map[string]any{
		"items": []map[string]any{{"drug_id": drug, "quantity": 100}},
	}, &stockErr)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient stock, got %d", status)
	}
	if stockErr["drug_id"] != float64(drug) {
		t.Errorf("expected drug_id %d in error, got %v", drug, stockErr)
	}

	var voided domain.Sale
	status = call(t, "POST", fmt.Sprintf("%s/sales/%d/void", server.URL, sale.ID), token, nil, &voided)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for void, got %d", status)
	}
	if voided.Status != domain.SaleStatusVoided {
		t.Errorf("expected VOIDED, got %s", voided.Status)
	}

	status = call(t, "POST", fmt.Sprintf("%s/sales/%d/void", server.URL, sale.ID), token, nil, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for second void, got %d", status)
	}
	if status := call(t, "POST", server.URL+"/sales/9999/void", token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for missing sale, got %d", status)
	}

	var batches []domain.InventoryBatch
	call(t, "GET", fmt.Sprintf("%s/inventory/batches?drug_id=%d", server.URL, drug), token, nil, &batches)
	if len(batches) != 2 || batches[0].Quantity != 5 || batches[1].Quantity != 10 {
		t.Errorf("expected stock restored, got %+v", batches)
	}

	var history []domain.Sale
	call(t, "GET", server.URL+"/sales/history", token, nil, &history)
	if len(history) != 1 || history[0].Status != domain.SaleStatusVoided {
		t.Errorf("unexpected history %+v", history)
	}
}

func TestCheckoutValidation(t *testing.T) {
	server, _, token := setupTestServer(t)

	var out struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	status := call(t, "POST", server.URL+"/sales/checkout", token, map[string]any{
		"items": []map[string]any{{"drug_id": 1, "quantity": 0}},
	}, &out)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", status)
	}
	if _, ok := out.Fields["items[0].quantity"]; !ok {
		t.Errorf("expected items[0].quantity in fields, got %v", out.Fields)
	}

	status = call(t, "POST", server.URL+"/sales/checkout", token, map[string]any{"items": []any{}}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for empty cart, got %d", status)
	}

	status = call(t, "POST", server.URL+"/sales/checkout", token, map[string]any{"items": []any{}, "bogus": 1}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", status)
	}
}

func TestStaffPermissions(t *testing.T) {
	server, st, token := setupTestServer(t)
	ctx := context.Background()
	north, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "North"})
	south, _ := st.CreatePharmacy(ctx, domain.Pharmacy{Name: "South"})
	createUser(t, st, "staff@north.test", domain.RoleStaff, &north.ID)
	staff := login(t, server, "staff@north.test")

	drug := createDrug(t, server, token, "Ibuprofen")
	southBatch := createBatch(t, server, token, map[string]any{
		"drug_id": drug, "quantity": 5, "unit_price": "3", "expiry_date": "2099-01-01", "pharmacy_id": south.ID,
	})

	if status := call(t, "POST", server.URL+"/inventory/drugs", staff, map[string]any{"name": "X"}, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for staff creating a drug, got %d", status)
	}
	if status := call(t, "POST", server.URL+"/sales/1/void", staff, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for staff voiding, got %d", status)
	}
	if status := call(t, "POST", server.URL+"/pharmacies", staff, map[string]any{"name": "Y"}, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for staff creating a pharmacy, got %d", status)
	}

	status := call(t, "PUT", fmt.Sprintf("%s/inventory/batches/%d", server.URL, southBatch.ID), staff, map[string]any{"quantity": 1}, nil)
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for cross-tenant batch update, got %d", status)
	}
	status = call(t, "POST", server.URL+"/inventory/batches", staff, map[string]any{
		"drug_id": drug, "quantity": 5, "unit_price": "3", "expiry_date": "2099-01-01", "pharmacy_id": south.ID,
	}, nil)
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for receiving into another pharmacy, got %d", status)
	}

	own := createBatch(t, server, staff, map[string]any{
		"drug_id": drug, "quantity": 2, "unit_price": "3", "expiry_date": "2099-01-01",
	})
	if own.PharmacyID == nil || *own.PharmacyID != north.ID {
		t.Errorf("expected batch defaulted to caller's pharmacy, got %v", own.PharmacyID)
	}

	var updated domain.InventoryBatch
	status = call(t, "PUT", fmt.Sprintf("%s/inventory/batches/%d", server.URL, own.ID), staff, map[string]any{"quantity": 7}, &updated)
	if status != http.StatusOK || updated.Quantity != 7 {
		t.Errorf("expected own batch updated to 7, got %d %+v", status, updated)
	}

	// South stock is invisible to north staff.
	status = call(t, "POST", server.URL+"/sales/checkout", staff, map[string]any{
		"items": []map[string]any{{"drug_id": drug, "quantity": 8}},
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 when only another tenant has stock, got %d", status)
	}
}

func TestBatchValidation(t *testing.T) {
	server, _, token := setupTestServer(t)
	drug := createDrug(t, server, token, "Amoxicillin")

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"zero price", map[string]any{"drug_id": drug, "quantity": 1, "unit_price": "0", "expiry_date": "2099-01-01"}, http.StatusBadRequest},
		{"bad date", map[string]any{"drug_id": drug, "quantity": 1, "unit_price": "1", "expiry_date": "01/01/2099"}, http.StatusBadRequest},
		{"negative quantity", map[string]any{"drug_id": drug, "quantity": -1, "unit_price": "1", "expiry_date": "2099-01-01"}, http.StatusBadRequest},
		{"unknown drug", map[string]any{"drug_id": 9999, "quantity": 1, "unit_price": "1", "expiry_date": "2099-01-01"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if status := call(t, "POST", server.URL+"/inventory/batches", token, tc.body, nil); status != tc.want {
				t.Errorf("expected %d, got %d", tc.want, status)
			}
		})
	}
}

func TestDrugCatalogEndpoints(t *testing.T) {
	server, _, token := setupTestServer(t)

	var d domain.Drug
	status := call(t, "POST", server.URL+"/inventory/drugs", token, map[string]any{
		"name": "Morphine", "dosage": "10mg", "controlled_drug": true,
	}, &d)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if d.Unit != domain.DefaultDrugUnit || d.MinStockQuantity != domain.DefaultMinimumStock {
		t.Errorf("expected defaults, got %+v", d)
	}

	status = call(t, "POST", server.URL+"/inventory/drugs", token, map[string]any{"name": "Morphine", "dosage": "10mg"}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate drug, got %d", status)
	}

	var updated domain.Drug
	status = call(t, "PUT", fmt.Sprintf("%s/inventory/drugs/%d", server.URL, d.ID), token, map[string]any{
		"name": "Morphine", "dosage": "10mg", "controlled_drug": true, "min_stock_quantity": 3,
	}, &updated)
	if status != http.StatusOK || updated.MinStockQuantity != 3 {
		t.Errorf("expected min stock 3, got %d %+v", status, updated)
	}

	var controlled []domain.Drug
	call(t, "GET", server.URL+"/inventory/drugs?controlled=true", token, nil, &controlled)
	if len(controlled) != 1 {
		t.Errorf("expected 1 controlled drug, got %d", len(controlled))
	}

	var got alerts.Alerts
	call(t, "GET", server.URL+"/inventory/alerts", token, nil, &got)
	if len(got.LowStock) != 1 || got.LowStock[0].DrugID != d.ID {
		t.Errorf("expected low stock alert for %d, got %+v", d.ID, got.LowStock)
	}
}

func TestPrescriptionEndpoints(t *testing.T) {
	server, st, token := setupTestServer(t)
	ctx := context.Background()
	morphine := createDrug(t, server, token, "Morphine")
	if _, err := st.UpdateDrug(ctx, domain.Drug{ID: morphine, Name: "Morphine", Unit: "pcs", ControlledDrug: true}); err != nil {
		t.Fatalf("UpdateDrug: %v", err)
	}

	var issues struct {
		Error  string                `json:"error"`
		Issues []prescriptions.Issue `json:"issues"`
	}
	status := call(t, "POST", server.URL+"/prescriptions", token, map[string]any{
		"patient_name":     "Pat",
		"doctor_name":      "Doc",
		"prescribed_drugs": []map[string]any{{"drug_id": 9999}},
	}, &issues)
	if status != http.StatusBadRequest || len(issues.Issues) != 1 {
		t.Fatalf("expected 400 with one issue, got %d %+v", status, issues)
	}

	var p domain.Prescription
	status = call(t, "POST", server.URL+"/prescriptions", token, map[string]any{
		"patient_name":     "Pat",
		"doctor_name":      "Doc",
		"prescribed_drugs": []map[string]any{{"drug_id": morphine, "dosage_per_day": 2, "duration_days": 3}},
	}, &p)
	if status != http.StatusCreated || p.Status != domain.PrescriptionPending {
		t.Fatalf("expected pending prescription, got %d %+v", status, p)
	}

	var pending []domain.Prescription
	call(t, "GET", server.URL+"/prescriptions/pending", token, nil, &pending)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}

	var approved domain.Prescription
	status = call(t, "PUT", fmt.Sprintf("%s/prescriptions/%d/approve", server.URL, p.ID), token, nil, &approved)
	if status != http.StatusOK || approved.Status != domain.PrescriptionApproved {
		t.Errorf("expected approved, got %d %+v", status, approved)
	}
	status = call(t, "PUT", fmt.Sprintf("%s/prescriptions/%d/reject", server.URL, p.ID), token, map[string]any{"reason": "late"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 rejecting an approved prescription, got %d", status)
	}

	if status := call(t, "GET", server.URL+"/prescriptions?status=bogus", token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", status)
	}
}

func TestAuditLogEndpoint(t *testing.T) {
	server, st, token := setupTestServer(t)
	createDrug(t, server, token, "Cetirizine")

	var logs []domain.AuditLog
	status := call(t, "GET", server.URL+"/admin/audit-logs?resource=drug", token, nil, &logs)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(logs) != 1 || logs[0].Action != domain.ActionCreate {
		t.Fatalf("expected one CREATE entry, got %+v", logs)
	}
	if logs[0].UserID == nil || logs[0].IP == nil {
		t.Errorf("expected actor recorded, got %+v", logs[0])
	}

	createUser(t, st, "staff@example.com", domain.RoleStaff, nil)
	staff := login(t, server, "staff@example.com")
	if status := call(t, "GET", server.URL+"/admin/audit-logs", staff, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for staff, got %d", status)
	}
}

func TestHealth(t *testing.T) {
	server, _, _ := setupTestServer(t)
	var out map[string]string
	if status := call(t, "GET", server.URL+"/health", "", nil, &out); status != http.StatusOK || out["status"] != "ok" {
		t.Errorf("expected ok, got %d %v", status, out)
	}
}
