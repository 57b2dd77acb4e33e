package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/dto"
	internalmiddleware "github.com/noah-isme/timetable-api/internal/middleware"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	"github.com/noah-isme/timetable-api/internal/service"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type generatorMock struct {
	captured  dto.GenerateTimetableRequest
	requester *models.JWTClaims
	err       error
}

func (m *generatorMock) RunGeneration(_ context.Context, req dto.GenerateTimetableRequest, requester *models.JWTClaims) (*dto.GenerationResult, error) {
	m.captured = req
	m.requester = requester
	if m.err != nil {
		return nil, m.err
	}
	return &dto.GenerationResult{Status: dto.GenerationPublished, Timetable: &models.Timetable{ID: "tt-1"}}, nil
}

type jobsMock struct{}

func (jobsMock) Submit(context.Context, dto.GenerateTimetableRequest, *models.JWTClaims) (*dto.SubmitGenerationResponse, error) {
	return &dto.SubmitGenerationResponse{JobID: "job-1", Status: models.GenerationJobQueued}, nil
}

func (jobsMock) Get(_ context.Context, id string) (*dto.GenerationJobDetail, error) {
	if id != "job-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found or expired")
	}
	return &dto.GenerationJobDetail{Job: models.GenerationJob{ID: id, Status: models.GenerationJobRunning}}, nil
}

type timetableReaderMock struct {
	approver  *models.JWTClaims
	deleteErr error
	query     dto.TimetableQuery
}

func (m *timetableReaderMock) Get(_ context.Context, id string) (*dto.TimetableDetail, error) {
	return &dto.TimetableDetail{Timetable: models.Timetable{ID: id}, Slots: []models.TimetableSlotDetail{}}, nil
}

func (m *timetableReaderMock) List(_ context.Context, query dto.TimetableQuery) ([]models.Timetable, *models.Pagination, error) {
	m.query = query
	return []models.Timetable{{ID: "tt-1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (m *timetableReaderMock) Approve(_ context.Context, id string, req dto.ApproveTimetableRequest, approver *models.JWTClaims) (*models.Timetable, error) {
	m.approver = approver
	return &models.Timetable{ID: id, Status: req.Status}, nil
}

func (m *timetableReaderMock) Delete(context.Context, string) error {
	return m.deleteErr
}

func (m *timetableReaderMock) ValidateCandidates(_ context.Context, req dto.ValidateTimetableRequest) (*scheduler.ValidationResult, error) {
	return &scheduler.ValidationResult{Valid: len(req.Slots) < 2, Errors: []string{}, Conflicts: []scheduler.Conflict{}}, nil
}

func (m *timetableReaderMock) Export(_ context.Context, id, format string) (*service.ExportFile, error) {
	return &service.ExportFile{Filename: id + "." + format, ContentType: "text/csv", Data: []byte("Day\n")}, nil
}

func newTimetableTestContext(method, target string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

func TestTimetableGenerateCreated(t *testing.T) {
	gen := &generatorMock{}
	handler := NewTimetableHandler(gen, jobsMock{}, &timetableReaderMock{})
	c, w := newTimetableTestContext(http.MethodPost, "/timetables/generate", []byte(`{"departmentId":3,"semester":5}`))
	c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleTimetableAdmin})

	handler.Generate(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(3), gen.captured.DepartmentID)
	assert.Equal(t, 5, gen.captured.Semester)
	require.NotNil(t, gen.requester)
	assert.Equal(t, "admin-1", gen.requester.UserID)
}

func TestTimetableGenerateBadJSON(t *testing.T) {
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{})
	c, w := newTimetableTestContext(http.MethodPost, "/timetables/generate", []byte(`{"departmentId":`))

	handler.Generate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimetableGenerateStructuralError(t *testing.T) {
	gen := &generatorMock{err: appErrors.Clone(appErrors.ErrStructuralInput, "no classrooms available")}
	handler := NewTimetableHandler(gen, jobsMock{}, &timetableReaderMock{})
	c, w := newTimetableTestContext(http.MethodPost, "/timetables/generate", []byte(`{"departmentId":3,"semester":5}`))

	handler.Generate(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "STRUCTURAL_INPUT", body.Error.Code)
}

func TestTimetableJobsEndpoints(t *testing.T) {
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{})

	c, w := newTimetableTestContext(http.MethodPost, "/timetables/generate/jobs", []byte(`{"departmentId":3,"semester":5}`))
	handler.SubmitJob(c)
	require.Equal(t, http.StatusAccepted, w.Code)

	c, w = newTimetableTestContext(http.MethodGet, "/timetables/generate/jobs/job-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "job-1"}}
	handler.GetJob(c)
	require.Equal(t, http.StatusOK, w.Code)

	c, w = newTimetableTestContext(http.MethodGet, "/timetables/generate/jobs/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	handler.GetJob(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTimetableListBindsQuery(t *testing.T) {
	reader := &timetableReaderMock{}
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, reader)
	c, w := newTimetableTestContext(http.MethodGet, "/timetables?departmentId=2&semester=4&status=PENDING&page=2", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), reader.query.DepartmentID)
	assert.Equal(t, 4, reader.query.Semester)
	assert.Equal(t, "PENDING", reader.query.Status)
	assert.Equal(t, 2, reader.query.Page)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestTimetableApprovePassesClaims(t *testing.T) {
	reader := &timetableReaderMock{}
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, reader)
	c, w := newTimetableTestContext(http.MethodPost, "/timetables/tt-1/approve", []byte(`{"status":"APPROVED"}`))
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "hod-1", Role: models.RoleHOD})

	handler.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, reader.approver)
	assert.Equal(t, "hod-1", reader.approver.UserID)
}

func TestTimetableDelete(t *testing.T) {
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{})
	c, w := newTimetableTestContext(http.MethodDelete, "/timetables/tt-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}
	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)

	handler = NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{deleteErr: appErrors.ErrFinalized})
	c, w = newTimetableTestContext(http.MethodDelete, "/timetables/tt-2", nil)
	c.Params = gin.Params{{Key: "id", Value: "tt-2"}}
	handler.Delete(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTimetableValidateEndpoint(t *testing.T) {
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{})
	c, w := newTimetableTestContext(http.MethodPost, "/timetables/validate", []byte(`{"semester":1,"slots":[{},{}]}`))

	handler.Validate(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)
}

func TestTimetableExportSetsAttachment(t *testing.T) {
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{})
	c, w := newTimetableTestContext(http.MethodGet, "/timetables/tt-1/export?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "tt-1"}}

	handler.Export(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="tt-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Day\n", w.Body.String())
}

func TestGenerateRouteRequiresRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTimetableHandler(&generatorMock{}, jobsMock{}, &timetableReaderMock{})
	router := gin.New()
	router.POST("/timetables/generate",
		func(c *gin.Context) {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{UserID: "f1", Role: models.RoleFaculty})
			c.Next()
		},
		internalmiddleware.RequireRoles(models.RoleSuperAdmin, models.RoleTimetableAdmin, models.RoleHOD),
		handler.Generate,
	)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/timetables/generate", bytes.NewReader([]byte(`{"departmentId":1,"semester":1}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
