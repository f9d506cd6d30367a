// Package twinstest provides an in-memory digital twins service for tests.
package twinstest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vk/twinctl/internal/dtdl"
	"github.com/vk/twinctl/internal/twins"
)

// Server is a fake instance. All state is guarded by one mutex and may be
// inspected by tests through the accessor methods.
type Server struct {
	*httptest.Server

	// Token, when set, is required as bearer token on every request.
	Token string
	// PageSize bounds list and query pages, forcing paging in tests.
	PageSize int

	mu       sync.Mutex
	models   []twins.ModelData
	twins    map[string]map[string]any
	rels     map[string]map[string]twins.BasicRelationship
	routes   map[string]twins.EventRoute
	failures map[string][]int
	calls    []string
	served   func(key string)
}

// NewServer starts a fake instance that is closed with the test.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		PageSize: 100,
		twins:    make(map[string]map[string]any),
		rels:     make(map[string]map[string]twins.BasicRelationship),
		routes:   make(map[string]twins.EventRoute),
		failures: make(map[string][]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /models", s.listModels)
	mux.HandleFunc("POST /models", s.createModels)
	mux.HandleFunc("GET /models/{id}", s.getModel)
	mux.HandleFunc("PATCH /models/{id}", s.patchModel)
	mux.HandleFunc("DELETE /models/{id}", s.deleteModel)
	mux.HandleFunc("GET /digitaltwins/{id}", s.getTwin)
	mux.HandleFunc("PUT /digitaltwins/{id}", s.putTwin)
	mux.HandleFunc("PATCH /digitaltwins/{id}", s.patchTwin)
	mux.HandleFunc("DELETE /digitaltwins/{id}", s.deleteTwin)
	mux.HandleFunc("GET /digitaltwins/{id}/relationships", s.listRelationships)
	mux.HandleFunc("GET /digitaltwins/{id}/relationships/{rel}", s.getRelationship)
	mux.HandleFunc("PUT /digitaltwins/{id}/relationships/{rel}", s.putRelationship)
	mux.HandleFunc("DELETE /digitaltwins/{id}/relationships/{rel}", s.deleteRelationship)
	mux.HandleFunc("GET /digitaltwins/{id}/incomingrelationships", s.listIncoming)
	mux.HandleFunc("POST /query", s.query)
	mux.HandleFunc("GET /eventroutes", s.listRoutes)
	mux.HandleFunc("GET /eventroutes/{id}", s.getRoute)
	mux.HandleFunc("PUT /eventroutes/{id}", s.putRoute)
	mux.HandleFunc("DELETE /eventroutes/{id}", s.deleteRoute)

	s.Server = httptest.NewServer(s.middleware(mux))
	t.Cleanup(s.Close)
	return s
}

// Client returns a client bound to the server.
func (s *Server) Client(t testing.TB) *twins.Client {
	t.Helper()
	c, err := twins.New(twins.Options{InstanceURL: s.URL, Token: s.Token, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Fail makes the next len(statuses) requests matching "METHOD /path" answer
// with the given statuses.
func (s *Server) Fail(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], statuses...)
}

// OnServed registers fn to run with "METHOD /path" after each request.
func (s *Server) OnServed(fn func(key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.served = fn
}

// Calls returns every request seen so far as "METHOD /path".
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// AddModels uploads DTDL documents directly.
func (s *Server) AddModels(t testing.TB, docs ...string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if status, msg := s.addModelLocked(json.RawMessage(doc)); status != 0 {
			t.Fatalf("failed to add model: %d %s", status, msg)
		}
	}
}

// ModelIDs returns the ids of the stored models in upload order.
func (s *Server) ModelIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.models))
	for i, m := range s.models {
		ids[i] = m.ID
	}
	return ids
}

// Model returns a stored model.
func (s *Server) Model(id string) (twins.ModelData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.modelIndexLocked(id)
	if i < 0 {
		return twins.ModelData{}, false
	}
	return s.models[i], true
}

// Twin returns a copy of a stored twin.
func (s *Server) Twin(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	twin, ok := s.twins[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(twin))
	for k, v := range twin {
		out[k] = v
	}
	return out, true
}

// TwinIDs returns the sorted ids of all stored twins.
func (s *Server) TwinIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.twinIDsLocked()
}

// PutTwin stores a twin directly.
func (s *Server) PutTwin(id, modelID string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	twin := map[string]any{"$dtId": id, "$metadata": map[string]any{"$model": modelID}}
	for k, v := range props {
		twin[k] = v
	}
	s.twins[id] = twin
}

// PutRelationship stores a relationship directly.
func (s *Server) PutRelationship(rel twins.BasicRelationship) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rels[rel.SourceID] == nil {
		s.rels[rel.SourceID] = make(map[string]twins.BasicRelationship)
	}
	s.rels[rel.SourceID][rel.ID] = rel
}

// Relationships returns the outgoing relationships of a twin sorted by id.
func (s *Server) Relationships(twinID string) []twins.BasicRelationship {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoingLocked(twinID)
}

// Route returns a stored event route.
func (s *Server) Route(id string) (twins.EventRoute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routes[id]
	return r, ok
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls = append(s.calls, key)
		served := s.served
		status := 0
		if queued := s.failures[key]; len(queued) > 0 {
			status = queued[0]
			s.failures[key] = queued[1:]
		}
		s.mu.Unlock()

		if r.URL.Query().Get("api-version") == "" {
			writeError(w, http.StatusBadRequest, "MissingApiVersionParameter", "api-version is required")
			return
		}
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		if served != nil {
			defer served(key)
		}
		if status != 0 {
			writeError(w, status, "Injected", http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

// pageOf cuts one page out of items using the "page" query parameter.
func pageOf[T any](s *Server, r *http.Request, items []T) map[string]any {
	start, _ := strconv.Atoi(r.URL.Query().Get("page"))
	end := min(start+s.PageSize, len(items))
	if start > len(items) {
		start = len(items)
	}
	out := map[string]any{"value": items[start:end]}
	if end < len(items) {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(end))
		q.Del("api-version")
		out["nextLink"] = r.URL.Path + "?" + q.Encode()
	}
	return out
}

func (s *Server) modelIndexLocked(id string) int {
	for i, m := range s.models {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) addModelLocked(doc json.RawMessage) (int, string) {
	ifaces, err := dtdl.ParseDocuments([]json.RawMessage{doc})
	if err != nil {
		return http.StatusBadRequest, err.Error()
	}
	top := ifaces[0]
	if s.modelIndexLocked(top.ID) >= 0 {
		return http.StatusConflict, fmt.Sprintf("model %s already exists", top.ID)
	}
	now := time.Now().UTC()
	md := twins.ModelData{ID: top.ID, UploadTime: &now, Model: doc}
	if top.DisplayName != "" {
		md.DisplayName = map[string]string{"en": top.DisplayName}
	}
	s.models = append(s.models, md)
	return 0, ""
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	withDef := r.URL.Query().Get("includeModelDefinition") == "true"
	items := make([]twins.ModelData, 0, len(s.models))
	for _, m := range s.models {
		if !withDef {
			m.Model = nil
		}
		items = append(items, m)
	}
	writeJSON(w, http.StatusOK, pageOf(s, r, items))
}

func (s *Server) createModels(w http.ResponseWriter, r *http.Request) {
	var docs []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&docs); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.models)
	for _, doc := range docs {
		if status, msg := s.addModelLocked(doc); status != 0 {
			s.models = s.models[:before]
			code := "DTDLParserError"
			if status == http.StatusConflict {
				code = "ModelAlreadyExists"
			}
			writeError(w, status, code, msg)
			return
		}
	}
	writeJSON(w, http.StatusCreated, s.models[before:])
}

func (s *Server) getModel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.modelIndexLocked(r.PathValue("id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "ModelNotFound", "model not found")
		return
	}
	writeJSON(w, http.StatusOK, s.models[i])
}

func (s *Server) patchModel(w http.ResponseWriter, r *http.Request) {
	var patch twins.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.modelIndexLocked(r.PathValue("id"))
	if i < 0 {
		writeError(w, http.StatusNotFound, "ModelNotFound", "model not found")
		return
	}
	for _, op := range patch {
		if op.Path == "/decommissioned" && op.Value == true {
			s.models[i].Decommissioned = true
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.modelIndexLocked(id)
	if i < 0 {
		writeError(w, http.StatusNotFound, "ModelNotFound", "model not found")
		return
	}
	models, err := twins.ToPurgeModels(s.models)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalServerError", err.Error())
		return
	}
	for _, m := range models {
		for _, ref := range m.References() {
			if ref == id {
				writeError(w, http.StatusConflict, "ModelReferencesNotDeleted",
					fmt.Sprintf("model %s is still referenced by %s", id, m.ID))
				return
			}
		}
	}
	s.models = append(s.models[:i], s.models[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) twinIDsLocked() []string {
	ids := make([]string, 0, len(s.twins))
	for id := range s.twins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) getTwin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	twin, ok := s.twins[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "DigitalTwinNotFound", "twin not found")
		return
	}
	writeJSON(w, http.StatusOK, twin)
}

func (s *Server) putTwin(w http.ResponseWriter, r *http.Request) {
	var twin map[string]any
	if err := json.NewDecoder(r.Body).Decode(&twin); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	id := r.PathValue("id")
	meta, _ := twin["$metadata"].(map[string]any)
	modelID, _ := meta["$model"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.modelIndexLocked(modelID) < 0 {
		writeError(w, http.StatusBadRequest, "InvalidArgument", fmt.Sprintf("model %s not found", modelID))
		return
	}
	twin["$dtId"] = id
	s.twins[id] = twin
	writeJSON(w, http.StatusOK, twin)
}

func (s *Server) patchTwin(w http.ResponseWriter, r *http.Request) {
	var patch twins.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	twin, ok := s.twins[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "DigitalTwinNotFound", "twin not found")
		return
	}
	for _, op := range patch {
		prop := strings.TrimPrefix(op.Path, "/")
		switch op.Op {
		case "add":
			twin[prop] = op.Value
		case "replace":
			if _, exists := twin[prop]; !exists {
				writeError(w, http.StatusBadRequest, "JsonPatchInvalid", fmt.Sprintf("property %s does not exist", prop))
				return
			}
			twin[prop] = op.Value
		case "remove":
			delete(twin, prop)
		default:
			writeError(w, http.StatusBadRequest, "JsonPatchInvalid", "unsupported op "+op.Op)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteTwin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.twins[id]; !ok {
		writeError(w, http.StatusNotFound, "DigitalTwinNotFound", "twin not found")
		return
	}
	if len(s.rels[id]) > 0 || len(s.incomingLocked(id)) > 0 {
		writeError(w, http.StatusBadRequest, "RelationshipsNotDeleted", "twin still has relationships")
		return
	}
	delete(s.twins, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) outgoingLocked(twinID string) []twins.BasicRelationship {
	out := make([]twins.BasicRelationship, 0, len(s.rels[twinID]))
	for _, rel := range s.rels[twinID] {
		out = append(out, rel)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) incomingLocked(twinID string) []twins.IncomingRelationship {
	var out []twins.IncomingRelationship
	for _, src := range s.twinIDsLocked() {
		for _, rel := range s.outgoingLocked(src) {
			if rel.TargetID == twinID {
				out = append(out, twins.IncomingRelationship{
					RelationshipID:   rel.ID,
					SourceID:         rel.SourceID,
					RelationshipName: rel.Name,
					RelationshipLink: fmt.Sprintf("/digitaltwins/%s/relationships/%s", rel.SourceID, rel.ID),
				})
			}
		}
	}
	return out
}

func (s *Server) listRelationships(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := r.URL.Query().Get("relationshipName")
	var items []twins.BasicRelationship
	for _, rel := range s.outgoingLocked(r.PathValue("id")) {
		if name == "" || rel.Name == name {
			items = append(items, rel)
		}
	}
	writeJSON(w, http.StatusOK, pageOf(s, r, items))
}

func (s *Server) listIncoming(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, pageOf(s, r, s.incomingLocked(r.PathValue("id"))))
}

func (s *Server) getRelationship(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.rels[r.PathValue("id")][r.PathValue("rel")]
	if !ok {
		writeError(w, http.StatusNotFound, "RelationshipNotFound", "relationship not found")
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) putRelationship(w http.ResponseWriter, r *http.Request) {
	var rel twins.BasicRelationship
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	rel.SourceID = r.PathValue("id")
	rel.ID = r.PathValue("rel")

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.twins[rel.SourceID]; !ok {
		writeError(w, http.StatusNotFound, "DigitalTwinNotFound", "source twin not found")
		return
	}
	if _, ok := s.twins[rel.TargetID]; !ok {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "target twin not found")
		return
	}
	if s.rels[rel.SourceID] == nil {
		s.rels[rel.SourceID] = make(map[string]twins.BasicRelationship)
	}
	s.rels[rel.SourceID][rel.ID] = rel
	writeJSON(w, http.StatusOK, rel)
}

func (s *Server) deleteRelationship(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, relID := r.PathValue("id"), r.PathValue("rel")
	if _, ok := s.rels[id][relID]; !ok {
		writeError(w, http.StatusNotFound, "RelationshipNotFound", "relationship not found")
		return
	}
	delete(s.rels[id], relID)
	w.WriteHeader(http.StatusNoContent)
}

// query understands only "SELECT * FROM DIGITALTWINS", optionally with
// "WHERE $dtId = '<id>'".
func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query             string `json:"query"`
		ContinuationToken string `json:"continuationToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}

	query := req.Query
	start := 0
	if req.ContinuationToken != "" {
		var err error
		if query, start, err = decodeToken(req.ContinuationToken); err != nil {
			writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
			return
		}
	}

	upper := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(upper, "SELECT * FROM DIGITALTWINS") {
		writeError(w, http.StatusBadRequest, "QueryParserError", "unsupported query")
		return
	}
	filter := ""
	if i := strings.Index(upper, "WHERE $DTID = '"); i >= 0 {
		rest := strings.TrimSpace(query)[i+len("WHERE $DTID = '"):]
		filter = strings.TrimSuffix(rest, "'")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var items []map[string]any
	for _, id := range s.twinIDsLocked() {
		if filter == "" || id == filter {
			items = append(items, s.twins[id])
		}
	}
	end := min(start+s.PageSize, len(items))
	if start > len(items) {
		start = len(items)
	}
	resp := map[string]any{"value": items[start:end]}
	if end < len(items) {
		resp["continuationToken"] = fmt.Sprintf("%d|%s", end, query)
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeToken(token string) (string, int, error) {
	offset, query, ok := strings.Cut(token, "|")
	if !ok {
		return "", 0, fmt.Errorf("bad continuation token")
	}
	n, err := strconv.Atoi(offset)
	if err != nil {
		return "", 0, fmt.Errorf("bad continuation token: %w", err)
	}
	return query, n, nil
}

func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.routes))
	for id := range s.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	items := make([]twins.EventRoute, 0, len(ids))
	for _, id := range ids {
		items = append(items, s.routes[id])
	}
	writeJSON(w, http.StatusOK, pageOf(s, r, items))
}

func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	route, ok := s.routes[r.PathValue("id")]
	if !ok {
		writeError(w, http.StatusNotFound, "EventRouteNotFound", "event route not found")
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) putRoute(w http.ResponseWriter, r *http.Request) {
	var route twins.EventRoute
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
		return
	}
	route.ID = r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route.ID] = route
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRoute(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := s.routes[id]; !ok {
		writeError(w, http.StatusNotFound, "EventRouteNotFound", "event route not found")
		return
	}
	delete(s.routes, id)
	w.WriteHeader(http.StatusNoContent)
}
