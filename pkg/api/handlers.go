package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Meridian-Labs/poolrun/pkg/api/problem"
	"github.com/Meridian-Labs/poolrun/pkg/config"
	"github.com/Meridian-Labs/poolrun/pkg/engine"
	"github.com/Meridian-Labs/poolrun/pkg/vault"
)

// maxBodyBytes bounds request bodies; every payload here is tiny.
const maxBodyBytes = 1 << 16

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type initializePlatformRequest struct {
	FeeBps uint16 `json:"fee_bps"`
}

func (s *Server) handleInitializePlatform(w http.ResponseWriter, r *http.Request) {
	var req initializePlatformRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.engine.InitializePlatform(r.Context(), req.FeeBps)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPlatform(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetPlatform(r.Context())
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePausePlatform(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.PausePlatform(r.Context())
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUnpausePlatform(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.UnpausePlatform(r.Context())
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createRunRequest struct {
	RunID           uint64 `json:"run_id"`
	Template        string `json:"template,omitempty"`
	MinDeposit      uint64 `json:"min_deposit,omitempty"`
	MaxDeposit      uint64 `json:"max_deposit,omitempty"`
	MaxParticipants uint16 `json:"max_participants,omitempty"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !decode(w, r, &req) {
		return
	}
	// A named template supplies the bounds instead of the inline fields.
	if req.Template != "" {
		if s.templatesDir == "" {
			problem.WriteBadRequest(w, "run templates are not configured on this server")
			return
		}
		tpl, err := config.LoadTemplate(s.templatesDir, req.Template)
		if err != nil {
			problem.WriteBadRequest(w, "unknown run template "+strconv.Quote(req.Template))
			return
		}
		req.MinDeposit = tpl.MinDeposit
		req.MaxDeposit = tpl.MaxDeposit
		req.MaxParticipants = tpl.MaxParticipants
	}
	created, err := s.engine.CreateRun(r.Context(), req.RunID, req.MinDeposit, req.MaxDeposit, req.MaxParticipants)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if s.templatesDir == "" {
		writeJSON(w, http.StatusOK, []config.RunTemplate{})
		return
	}
	templates, err := config.ListTemplates(s.templatesDir)
	if err != nil {
		problem.WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.ListRuns(r.Context())
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	rec, err := s.engine.GetRun(r.Context(), runID)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateRunVault(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	if err := s.engine.CreateRunVault(r.Context(), runID); err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"run_id": runID, "vault": vault.RunVaultAccount(runID)})
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	part, err := s.engine.Deposit(r.Context(), runID, req.Amount)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, part)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	rec, err := s.engine.StartRun(r.Context(), runID)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type settleRunRequest struct {
	FinalBalance uint64                    `json:"final_balance"`
	Shares       []engine.ParticipantShare `json:"participant_shares"`
}

func (s *Server) handleSettleRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	var req settleRunRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.engine.SettleRun(r.Context(), runID, req.FinalBalance, req.Shares)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	wd, err := s.engine.Withdraw(r.Context(), runID)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wd)
}

type updateVoteStatsRequest struct {
	Participant  string `json:"participant"`
	CorrectVotes uint8  `json:"correct_votes"`
	TotalVotes   uint8  `json:"total_votes"`
}

func (s *Server) handleUpdateVoteStats(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	var req updateVoteStatsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Participant == "" {
		problem.WriteBadRequest(w, "participant is required")
		return
	}
	part, err := s.engine.UpdateVoteStats(r.Context(), runID, req.Participant, req.CorrectVotes, req.TotalVotes)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

type emergencyWithdrawRequest struct {
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	var req emergencyWithdrawRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Destination == "" {
		problem.WriteBadRequest(w, "destination account is required")
		return
	}
	if err := s.engine.EmergencyWithdraw(r.Context(), runID, req.Amount, vault.AccountID(req.Destination)); err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":      runID,
		"amount":      req.Amount,
		"destination": req.Destination,
	})
}

func (s *Server) handleListParticipations(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	parts, err := s.engine.ListParticipations(r.Context(), runID)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *Server) handleGetParticipation(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	participant := r.PathValue("participant")
	part, err := s.engine.GetParticipation(r.Context(), runID, participant)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (s *Server) handleDust(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFrom(w, r)
	if !ok {
		return
	}
	dust, err := s.engine.Dust(r.Context(), runID)
	if err != nil {
		problem.WriteAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"run_id": runID, "dust": dust})
}

// runIDFrom parses the {id} path segment. Writes the error response itself.
func runIDFrom(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		problem.WriteBadRequest(w, "run id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into dst. Writes the error response itself.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		problem.WriteBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
