package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/okrun/caseflow/pkg/engine"
	"github.com/okrun/caseflow/pkg/mocks"
	"github.com/okrun/caseflow/pkg/models"
	"github.com/okrun/caseflow/pkg/notification"
	"github.com/okrun/caseflow/pkg/persistence/memory"
	"github.com/okrun/caseflow/pkg/web"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	orchestrator := engine.NewEngine(store, bus, notification.NewLogDispatcher(logger), &mocks.MockGateway{}, logger)
	handlers := web.NewAPIHandlers(orchestrator, store, validator.New(validator.WithRequiredStructEnabled()))

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.ListDefinitions)
	w.Post("/", handlers.RegisterDefinition)
	w.Get("/:id", handlers.GetDefinition)
	w.Post("/:id/instances", handlers.StartInstance)

	i := app.Group("/instances")
	i.Get("/", handlers.ListInstances)
	i.Get("/:id", handlers.GetInstance)
	i.Post("/:id/steps/:stepId/complete", handlers.CompleteStep)
	i.Post("/:id/cancel", handlers.CancelInstance)
	i.Post("/:id/comments", handlers.AddComment)

	app.Get("/metrics", handlers.GetMetrics)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func definitionDocument() map[string]any {
	return map[string]any{
		"id":     "leave-request",
		"name":   "Leave Request",
		"active": true,
		"steps": []map[string]any{
			{
				"id":       "request",
				"name":     "Submit Request",
				"type":     "data_entry",
				"assignee": map[string]any{"type": "user", "value": "employee"},
			},
			{
				"id":           "approve",
				"name":         "Manager Approval",
				"type":         "approval",
				"assignee":     map[string]any{"type": "role", "value": "manager"},
				"dependencies": []string{"request"},
			},
		},
	}
}

func registerAndStart(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/", definitionDocument())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/leave-request/instances", web.StartInstanceRequest{Initiator: "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	require.NotEmpty(t, instance.ID)

	return instance.ID
}

func TestRegisterDefinition(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, body := doJSON(t, app, http.MethodPost, "/workflows/", definitionDocument())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var def models.WorkflowDefinition
	require.NoError(t, json.Unmarshal(body, &def))
	assert.Equal(t, "leave-request", def.ID)
	assert.Len(t, def.Steps, 2)

	// Re-registering the same id conflicts.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/", definitionDocument())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRegisterDefinition_RejectsInvalid(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	doc := definitionDocument()
	doc["steps"].([]map[string]any)[0]["dependencies"] = []string{"approve"}

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/", doc)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Schema violations are caught before unmarshalling.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/", map[string]any{"id": "x", "name": "No Steps"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartInstance_Validation(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/workflows/", definitionDocument())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Missing initiator.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/leave-request/instances", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown workflow.
	resp, _ = doJSON(t, app, http.MethodPost, "/workflows/nope/instances", web.StartInstanceRequest{Initiator: "alice"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCompleteStepFlow(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	instanceID := registerAndStart(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/"+instanceID+"/steps/request/complete", web.CompleteStepRequest{
		UserID: "alice",
		Action: "approve",
		Data:   map[string]any{"days": 3},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.StepResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, []string{"approve"}, result.NextSteps)

	// Duplicate completion loses.
	resp, _ = doJSON(t, app, http.MethodPost, "/instances/"+instanceID+"/steps/request/complete", web.CompleteStepRequest{
		UserID: "bob",
		Action: "approve",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// A step that was never entered is not completable.
	resp, _ = doJSON(t, app, http.MethodPost, "/instances/"+instanceID+"/steps/missing/complete", web.CompleteStepRequest{
		UserID: "bob",
		Action: "approve",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAndListInstances(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	instanceID := registerAndStart(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/instances/"+instanceID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var instance models.WorkflowInstance
	require.NoError(t, json.Unmarshal(body, &instance))
	assert.Equal(t, []string{"request"}, instance.CurrentSteps)

	resp, _ = doJSON(t, app, http.MethodGet, "/instances/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/instances/?user_id=employee", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var listing struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Equal(t, 1, listing.TotalCount)
}

func TestCancelInstance(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	instanceID := registerAndStart(t, app)

	resp, _ := doJSON(t, app, http.MethodPost, "/instances/"+instanceID+"/cancel", web.CancelInstanceRequest{
		CancelledBy: "alice",
		Reason:      "no longer needed",
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Cancelling twice conflicts with the terminal state.
	resp, _ = doJSON(t, app, http.MethodPost, "/instances/"+instanceID+"/cancel", web.CancelInstanceRequest{
		CancelledBy: "alice",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAddComment(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	instanceID := registerAndStart(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/instances/"+instanceID+"/comments", web.AddCommentRequest{
		AuthorID: "bob",
		Content:  "need receipts",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var comment models.Comment
	require.NoError(t, json.Unmarshal(body, &comment))
	assert.Equal(t, "need receipts", comment.Content)
}

func TestMetricsAndHealth(t *testing.T) {
	t.Parallel()

	app := setupTestApp(t)
	registerAndStart(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var metrics engine.Metrics
	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.Equal(t, 1, metrics.TotalInstances)

	resp, _ = doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
