package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/govai/internal/aggregate"
	"github.com/KaramelBytes/govai/internal/dataset"
	"github.com/KaramelBytes/govai/internal/pipeline"
	"github.com/KaramelBytes/govai/internal/profile"
)

type profileResponse struct {
	SessionID string                           `json:"session_id"`
	Dataset   string                           `json:"dataset"`
	Rows      int                              `json:"rows"`
	Profiles  map[string]profile.ColumnProfile `json:"profiles"`
	Report    string                           `json:"report"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.sessions.Len()})
}

// insights runs the pipeline on the uploaded file(s). Form fields:
// category, measure (repeatable or comma separated), time, granularity,
// aggregation, intent (repeatable), lenient. format=markdown switches the
// response to a Markdown report.
func (s *Server) insights(c *gin.Context) {
	ds, ok := s.upload(c)
	if !ok {
		return
	}
	in := pipeline.Input{
		Dataset:        ds,
		CategoryColumn: strings.TrimSpace(c.PostForm("category")),
		Measures:       splitList(c.PostFormArray("measure")),
		TimeColumn:     strings.TrimSpace(c.PostForm("time")),
		Intents:        nonEmpty(c.PostFormArray("intent")),
	}
	var err error
	if in.Aggregation, err = aggregate.ParseKind(c.PostForm("aggregation")); err != nil {
		respondWithError(c, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if in.Granularity, err = aggregate.ParseGranularity(c.PostForm("granularity")); err != nil {
		respondWithError(c, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if v := c.PostForm("lenient"); v != "" {
		if in.Lenient, err = strconv.ParseBool(v); err != nil {
			respondWithError(c, http.StatusBadRequest, codeBadRequest, "lenient must be a boolean")
			return
		}
	}

	sess, err := s.session(c)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return
	}
	res, err := sess.Run(c.Request.Context(), in)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return
	}
	if wantsMarkdown(c) {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(res.Markdown()))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) profile(c *gin.Context) {
	ds, ok := s.upload(c)
	if !ok {
		return
	}
	sess, err := s.session(c)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return
	}
	ps, report, err := sess.Profile(ds)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return
	}
	if wantsMarkdown(c) {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown()))
		return
	}
	c.JSON(http.StatusOK, profileResponse{
		SessionID: sess.ID,
		Dataset:   ds.Name(),
		Rows:      ds.Len(),
		Profiles:  ps,
		Report:    report.Markdown(),
	})
}

// normalize returns the session's categories for one column after
// absorbing the uploaded values.
func (s *Server) normalize(c *gin.Context) {
	ds, ok := s.upload(c)
	if !ok {
		return
	}
	column := strings.TrimSpace(c.PostForm("column"))
	if column == "" {
		respondWithError(c, http.StatusBadRequest, codeBadRequest, "column is required")
		return
	}
	sess, err := s.session(c)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return
	}
	mapping, cats, err := sess.Normalize(ds, column)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sess.ID,
		"column":     column,
		"categories": cats,
		"mapping":    mapping.Labels(),
	})
}

// upload reads every "file" part and merges them by header union. It must
// run before any other form access so the body limit applies.
func (s *Server) upload(c *gin.Context) (*dataset.Dataset, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opt.MaxUploadBytes)
	form, err := c.MultipartForm()
	var tooBig *http.MaxBytesError
	if err != nil && (errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large")) {
		respondWithError(c, http.StatusRequestEntityTooLarge, codeTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", s.opt.MaxUploadBytes))
		return nil, false
	}
	if err != nil {
		respondWithError(c, http.StatusBadRequest, codeBadRequest, "expected multipart form with a file field: "+err.Error())
		return nil, false
	}
	files := form.File["file"]
	if len(files) == 0 {
		respondWithError(c, http.StatusBadRequest, codeBadRequest, "file is required")
		return nil, false
	}
	parts := make([]*dataset.Dataset, 0, len(files))
	for _, fh := range files {
		ds, err := loadPart(fh)
		if err != nil {
			s.respondWithPipelineError(c, err)
			return nil, false
		}
		parts = append(parts, ds)
	}
	if len(parts) == 1 {
		return parts[0], true
	}
	merged, err := dataset.Merge("upload", "source", parts...)
	if err != nil {
		s.respondWithPipelineError(c, err)
		return nil, false
	}
	return merged, true
}

func loadPart(fh *multipart.FileHeader) (*dataset.Dataset, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return dataset.LoadBytes(fh.Filename, data, dataset.Options{})
}

func wantsMarkdown(c *gin.Context) bool {
	f := c.Query("format")
	if f == "" {
		f = c.PostForm("format")
	}
	return strings.EqualFold(f, "markdown") || strings.EqualFold(f, "md")
}

func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		out = append(out, nonEmpty(strings.Split(v, ","))...)
	}
	return out
}

func nonEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
