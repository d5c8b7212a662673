package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/titlevault/pkg/audit"
	"github.com/Mindburn-Labs/titlevault/pkg/property"
	"github.com/Mindburn-Labs/titlevault/pkg/review"
)

const roleCitizen = "citizen"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// callerRole is the caller-asserted role from X-Role or ?role.
func callerRole(r *http.Request) string {
	role := r.Header.Get("X-Role")
	if role == "" {
		role = r.URL.Query().Get("role")
	}
	return strings.ToLower(strings.TrimSpace(role))
}

func requireReviewer(w http.ResponseWriter, r *http.Request) (property.Role, bool) {
	role, err := property.ParseRole(callerRole(r))
	if err != nil {
		WriteErrorR(w, r, http.StatusForbidden, "Forbidden", "registrar, notary or local authority access required")
		return "", false
	}
	return role, true
}

func requireCitizen(w http.ResponseWriter, r *http.Request) bool {
	if callerRole(r) != roleCitizen {
		WriteErrorR(w, r, http.StatusForbidden, "Forbidden", "citizen access required")
		return false
	}
	return true
}

func requireKnownRole(w http.ResponseWriter, r *http.Request) bool {
	if callerRole(r) == roleCitizen {
		return true
	}
	_, ok := requireReviewer(w, r)
	return ok
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.health))
	for name := range s.health {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	status := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		err := s.health[name](ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+(1<<20))
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "expected a multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "file is required")
		return
	}
	defer func() { _ = f.Close() }()
	content, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		WriteInternal(w, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(content)) > s.maxUpload {
		WriteErrorR(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
			fmt.Sprintf("document exceeds %d bytes", s.maxUpload))
		return
	}

	reg, err := s.svc.Register(r.Context(), content, header.Filename,
		r.FormValue("userId"), r.FormValue("walletAddress"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	message := "document registered"
	if !reg.Created {
		status = http.StatusOK
		message = "document already registered"
	}
	writeJSON(w, status, map[string]any{
		"message": message,
		"hash":    reg.Record.ContentHash,
		"created": reg.Created,
		"file":    reg.Record,
	})
}

func (s *Server) handleListForReviewers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireReviewer(w, r); !ok {
		return
	}
	recs, err := s.svc.ListForReviewers(r.Context())
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": recs})
}

func (s *Server) handleListForCitizen(w http.ResponseWriter, r *http.Request) {
	if !requireCitizen(w, r) {
		return
	}
	q := r.URL.Query()
	ids := []string{r.PathValue("userId")}
	for _, id := range strings.Split(q.Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	recs, err := s.svc.ListForCitizen(r.Context(), ids, q.Get("walletAddress"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": recs})
}

type reviewBody struct {
	Hash            string `json:"hash"`
	Decision        string `json:"decision"`
	RejectionReason string `json:"rejectionReason"`
	ReviewerWallet  string `json:"reviewerWallet"`
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	role, ok := requireReviewer(w, r)
	if !ok {
		return
	}
	var body reviewBody
	if err := decodeBody(w, r, reviewSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	verdict, err := property.ParseVerdict(body.Decision)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	res, err := s.svc.Review(r.Context(), body.Hash, review.Request{
		Role:        role,
		Verdict:     verdict,
		Reason:      body.RejectionReason,
		ActorWallet: body.ReviewerWallet,
	})
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	out := map[string]any{
		"message": res.Message(),
		"outcome": res.Outcome,
		"file":    res.Record,
	}
	if res.Outcome == review.OutcomeAlreadyDecided {
		out["existingDecision"] = res.Existing
	}
	if res.PushErr != nil {
		out["chainPushError"] = res.PushErr.Error()
		out["retryable"] = property.Retryable(res.PushErr)
	}
	writeJSON(w, http.StatusOK, out)
}

type hashBody struct {
	Hash string `json:"hash"`
}

func (s *Server) handleRetryChainPush(w http.ResponseWriter, r *http.Request) {
	if !requireKnownRole(w, r) {
		return
	}
	var body hashBody
	if err := decodeBody(w, r, hashSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	rec, err := s.svc.RetryChainPush(r.Context(), body.Hash)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "hash pushed to the ledger", "file": rec})
}

type confirmBody struct {
	Hash   string `json:"hash"`
	TxHash string `json:"txHash"`
}

func (s *Server) handleConfirmChainPush(w http.ResponseWriter, r *http.Request) {
	if !requireKnownRole(w, r) {
		return
	}
	var body confirmBody
	if err := decodeBody(w, r, confirmSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	rec, err := s.svc.ConfirmChainPush(r.Context(), body.Hash, body.TxHash)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "ledger registration confirmed", "file": rec})
}

type transferBody struct {
	Hash           string `json:"hash"`
	NewOwnerWallet string `json:"newOwnerWallet"`
	TransferCode   string `json:"transferCode"`
}

func (s *Server) handleTransferOwner(w http.ResponseWriter, r *http.Request) {
	if !requireCitizen(w, r) {
		return
	}
	var body transferBody
	if err := decodeBody(w, r, transferSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	rec, err := s.svc.CompleteTransfer(r.Context(), body.Hash, body.NewOwnerWallet, body.TransferCode)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "ownership updated; review restarts for the new owner", "file": rec})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body hashBody
	if err := decodeBody(w, r, hashSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	v, err := s.svc.Verify(r.Context(), body.Hash)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	status := "Not Found"
	if v.Authentic {
		status = "Authentic"
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status, "result": v})
}

func (s *Server) handleLookupOwner(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireReviewer(w, r); !ok {
		return
	}
	info, err := s.svc.LookupOwner(r.Context(), r.PathValue("hash"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type walletBody struct {
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	var body walletBody
	if err := decodeBody(w, r, walletSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	c, err := s.svc.GenerateTransferCode(r.Context(), body.WalletAddress)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleResolveCode(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ResolveTransferCode(r.Context(), r.PathValue("code"))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type validateBody struct {
	Hash          string `json:"hash"`
	WalletAddress string `json:"walletAddress"`
}

func (s *Server) handleValidateTransfer(w http.ResponseWriter, r *http.Request) {
	var body validateBody
	if err := decodeBody(w, r, validateSchema, &body); err != nil {
		WriteServiceError(w, r, err)
		return
	}
	p, err := s.svc.ValidateTransfer(r.Context(), body.Hash, body.WalletAddress)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "transfer validation successful", "property": p})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireReviewer(w, r); !ok {
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		ContentHash: property.NormalizeHash(q.Get("hash")),
		Action:      audit.Action(q.Get("action")),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "since must be RFC 3339")
			return
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteErrorR(w, r, http.StatusBadRequest, "Bad Request", "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	bundle, err := s.audit.Export(f)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}
