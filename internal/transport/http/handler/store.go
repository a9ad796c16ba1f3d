// Package handler exposes the store's introspection and control surface
// over HTTP: list/inspect jobs and triggers, pause/resume
// groups, and read cluster/scheduler counters. It never implements
// scheduling logic itself — every handler is a thin adapter onto
// internal/store.Store.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coreclock/jobstore/internal/key"
	"github.com/coreclock/jobstore/internal/store"
)

// StoreHandler adapts a *store.Store to gin routes.
type StoreHandler struct {
	store *store.Store
}

func NewStoreHandler(s *store.Store) *StoreHandler {
	return &StoreHandler{store: s}
}

func groupMatcher(c *gin.Context) key.GroupMatcher {
	g := c.Query("group")
	if g == "" {
		return key.AnyGroup()
	}
	return key.GroupEquals(g)
}

func (h *StoreHandler) ListJobs(c *gin.Context) {
	keys, err := h.store.GetJobKeys(c.Request.Context(), groupMatcher(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": keys})
}

func (h *StoreHandler) GetJob(c *gin.Context) {
	jk := key.MustNew(c.Param("name"), c.Param("group"))
	job, err := h.store.RetrieveJob(c.Request.Context(), jk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *StoreHandler) DeleteJob(c *gin.Context) {
	jk := key.MustNew(c.Param("name"), c.Param("group"))
	removed, err := h.store.RemoveJob(c.Request.Context(), jk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) PauseJob(c *gin.Context) {
	jk := key.MustNew(c.Param("name"), c.Param("group"))
	if err := h.store.PauseJob(c.Request.Context(), jk); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) ResumeJob(c *gin.Context) {
	jk := key.MustNew(c.Param("name"), c.Param("group"))
	if err := h.store.ResumeJob(c.Request.Context(), jk); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) ListTriggers(c *gin.Context) {
	keys, err := h.store.GetTriggerKeys(c.Request.Context(), groupMatcher(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"triggers": keys})
}

func (h *StoreHandler) GetTrigger(c *gin.Context) {
	tk := key.MustNew(c.Param("name"), c.Param("group"))
	trig, err := h.store.RetrieveTrigger(c.Request.Context(), tk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if trig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": errTriggerNotFound})
		return
	}
	c.JSON(http.StatusOK, trig)
}

func (h *StoreHandler) GetTriggerState(c *gin.Context) {
	tk := key.MustNew(c.Param("name"), c.Param("group"))
	state, err := h.store.GetTriggerState(c.Request.Context(), tk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *StoreHandler) DeleteTrigger(c *gin.Context) {
	tk := key.MustNew(c.Param("name"), c.Param("group"))
	removed, err := h.store.RemoveTrigger(c.Request.Context(), tk)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": errTriggerNotFound})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) PauseTrigger(c *gin.Context) {
	tk := key.MustNew(c.Param("name"), c.Param("group"))
	if err := h.store.PauseTrigger(c.Request.Context(), tk); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) ResumeTrigger(c *gin.Context) {
	tk := key.MustNew(c.Param("name"), c.Param("group"))
	if err := h.store.ResumeTrigger(c.Request.Context(), tk); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) PauseTriggerGroup(c *gin.Context) {
	groups, err := h.store.PauseTriggers(c.Request.Context(), key.GroupEquals(c.Param("group")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": groups})
}

func (h *StoreHandler) ResumeTriggerGroup(c *gin.Context) {
	groups, err := h.store.ResumeTriggers(c.Request.Context(), key.GroupEquals(c.Param("group")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": groups})
}

func (h *StoreHandler) PauseAll(c *gin.Context) {
	if err := h.store.PauseAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) ResumeAll(c *gin.Context) {
	if err := h.store.ResumeAll(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoreHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	jobs, err := h.store.GetNumberOfJobs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	triggers, err := h.store.GetNumberOfTriggers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	calendars, err := h.store.GetNumberOfCalendars(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	paused, err := h.store.GetPausedTriggerGroups(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs": jobs,
		"triggers": triggers,
		"calendars": calendars,
		"pausedTriggerGroups": paused,
	})
}

// CheckCluster exposes an on-demand cluster recovery scan, mainly useful in
// tests and for an operator to poke a suspected-stuck cluster.
func (h *StoreHandler) CheckCluster(c *gin.Context) {
	recovered, err := h.store.CheckCluster(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
