package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/memory"
)

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errs.ValidationError("request body is not valid JSON: " + err.Error())
	}
	return nil
}

func (s *Server) runAdd(r *http.Request, req addRequestDTO) (addResponseDTO, error) {
	scope := memory.Scope(req.Scope)
	if req.Scope == "" {
		scope = memory.ScopePrivate
	} else if !scope.Valid() {
		return addResponseDTO{}, errs.ValidationError("scope must be one of PRIVATE, AGENT_GROUP, USER_GROUP, PUBLIC")
	}

	result, err := s.core.Add(r.Context(), core.AddRequest{
		Messages:   toMessages(req.Messages),
		Owner:      req.Identity.owner(),
		Metadata:   req.Metadata,
		Scope:      scope,
		MemoryType: req.MemoryType,
		Infer:      req.infer(),
		Text:       req.Content,
	})
	if err != nil {
		return addResponseDTO{}, err
	}

	out := addResponseDTO{Events: toEventDTOs(result.Events)}
	if result.Warning != nil {
		out.Warning = result.Warning.Error()
	}
	return out, nil
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := s.runAdd(r, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddBatch(w http.ResponseWriter, r *http.Request) {
	var req batchAddRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	results := make([]batchItemResultDTO, len(req.Items))
	for i, item := range req.Items {
		out, err := s.runAdd(r, item)
		if err != nil {
			var typed *errs.Error
			code, msg := string(errs.KindStorage), "internal error"
			if errors.As(err, &typed) {
				code, msg = string(typed.Kind), typed.Message
			}
			results[i] = batchItemResultDTO{Index: i, Error: &errorBody{Code: code, Message: msg}}
			continue
		}
		results[i] = batchItemResultDTO{Index: i, Result: &out}
	}
	writeJSON(w, http.StatusOK, batchAddResponseDTO{Results: results})
}

func queryOwner(r *http.Request) memory.Owner {
	q := r.URL.Query()
	return memory.Owner{
		UserID:  q.Get("user_id"),
		AgentID: q.Get("agent_id"),
		RunID:   q.Get("run_id"),
		ActorID: q.Get("actor_id"),
	}
}

func (s *Server) handleGetAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	records, err := s.core.GetAll(r.Context(), core.GetAllRequest{
		Owner:  queryOwner(r),
		Limit:  limit,
		Offset: offset,
		SortBy: memory.SortField(q.Get("sort_by")),
		Order:  memory.SortOrder(q.Get("order")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errs.ValidationError("id must be a 64-bit integer"))
		return
	}
	record, err := s.core.Get(r.Context(), id, queryOwner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errs.ValidationError("id must be a 64-bit integer"))
		return
	}
	var req updateRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	record, err := s.core.Update(r.Context(), id, req.Content, req.Metadata, req.Identity.owner())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(record))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errs.ValidationError("id must be a 64-bit integer"))
		return
	}
	if err := s.core.Delete(r.Context(), id, queryOwner(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var filter memory.Filter
	if req.Filters != nil {
		filter = *req.Filters
	}

	records, err := s.core.Search(r.Context(), core.SearchRequest{
		Query:     req.Query,
		Owner:     req.Identity.owner(),
		Filter:    filter,
		Limit:     req.Limit,
		Threshold: req.Threshold,
		Rerank:    req.Rerank,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	owner := queryOwner(r)
	if owner.Empty() {
		var body struct {
			Identity identityDTO `json:"identity"`
		}
		if r.ContentLength > 0 {
			if err := decodeJSON(r, &body); err != nil {
				writeError(w, r, err)
				return
			}
			owner = body.Identity.owner()
		}
	}

	count, err := s.core.DeleteAll(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.core.GetStatistics(r.Context(), queryOwner(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	caps := s.store.Capabilities()
	writeJSON(w, http.StatusOK, statusResponseDTO{
		Status:     "healthy",
		Statistics: stats,
		Capabilities: capabilitiesDTO{
			SupportsSparse:       caps.SupportsSparse,
			SupportsNativeHybrid: caps.SupportsNativeHybrid,
		},
	})
}
