package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tableflip.dev/sandlab/pkg/app"
	"tableflip.dev/sandlab/pkg/ledger"
)

// Response is the envelope of every storage-engine answer.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    *ledger.Record `json:"data"`
	// Rejected lists scalar paths a submission tried to overwrite.
	Rejected []string `json:"rejected,omitempty"`
}

type recordQuery struct {
	Date string `form:"date" binding:"required,datetime=2006-01-02"`
	Key  string `form:"key" binding:"omitempty,max=64"`
}

// SubmitRequest is the body of POST /records: the delta of one table plus the
// record key fields "date" and, for keyed workflows, "key" inside data.
type SubmitRequest struct {
	TableNum int            `json:"tableNum" binding:"required,min=1"`
	Data     map[string]any `json:"data" binding:"required"`
}

func (s *Server) getRecord(c *gin.Context) {
	svc := service(c)
	var q recordQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	key, err := svc.Key(q.Date, q.Key)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	rec, err := svc.Fetch(c.Request.Context(), key)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}
	s.metrics.fetches.WithLabelValues(svc.Workflow.Name, hit(rec)).Inc()
	c.JSON(http.StatusOK, Response{Success: true, Data: rec})
}

func hit(rec *ledger.Record) string {
	if rec == nil {
		return "miss"
	}
	return "hit"
}

func (s *Server) postRecord(c *gin.Context) {
	svc := service(c)
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	date, _ := req.Data["date"].(string)
	unit, _ := req.Data["key"].(string)
	delete(req.Data, "date")
	delete(req.Data, "key")

	key, err := svc.Key(date, unit)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	_, rep, err := svc.Apply(c.Request.Context(), key, req.TableNum, ledger.Document(req.Data))
	switch {
	case errors.Is(err, app.ErrUnknownTable), errors.Is(err, ledger.ErrInvalidKey), errors.Is(err, ledger.ErrInvalidDelta):
		s.fail(c, http.StatusBadRequest, err)
		return
	case err != nil:
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	table := fmt.Sprint(req.TableNum)
	s.metrics.merged.WithLabelValues(svc.Workflow.Name, table, "accepted").Add(float64(rep.Accepted))
	s.metrics.merged.WithLabelValues(svc.Workflow.Name, table, "appended").Add(float64(rep.Appended))
	s.metrics.merged.WithLabelValues(svc.Workflow.Name, table, "rejected").Add(float64(len(rep.Rejected)))
	c.JSON(http.StatusOK, Response{
		Success:  true,
		Message:  app.Message(req.TableNum, rep),
		Rejected: rep.Rejected,
	})
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, Response{Message: err.Error()})
}
