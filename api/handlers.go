package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"portal-api/domain"
	"portal-api/notify"
)

const requestBodyMaxSize = 1 << 20

// Deps carries the collaborators the handlers are wired with.
type Deps struct {
	Workflow         domain.Workflow
	Auth             Authenticator
	Directory        Directory
	Settings         SettingsLoader
	Queue            NotificationQueue
	Dispatcher       Dispatcher
	NewGateway       GatewayFactory
	BillingReturnURL string
	Logger           *log.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

type smsResponse struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type taskWithProgress struct {
	domain.Task
	Progress domain.Progress `json:"progress"`
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, deps Deps) {
	e.Use(CORSMiddleware())

	e.GET("/healthz", healthz())

	e.GET("/api/tasks", listTasks(deps))
	e.POST("/api/tasks", createTask(deps))
	e.PATCH("/api/tasks/:id", updateTask(deps))
	e.DELETE("/api/tasks/:id", deleteTask(deps))

	e.GET("/api/tasks/:id/subtasks", listSubtasks(deps))
	e.POST("/api/tasks/:id/subtasks", addSubtask(deps))
	e.PATCH("/api/tasks/:id/subtasks/:sid", toggleSubtask(deps))
	e.DELETE("/api/tasks/:id/subtasks/:sid", deleteSubtask(deps))
	e.POST("/api/tasks/:id/subtasks/:sid/assignee", reassignSubtask(deps))

	e.POST("/api/notifications/assignment", sendAssignmentSMS(deps))
	e.POST("/api/billing-portal", createBillingPortal(deps))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// requireSuperAdmin authenticates the caller and checks the super_admin
// capability. When it returns handled=true the response has been written.
func requireSuperAdmin(c echo.Context, deps Deps) (userID string, handled bool, err error) {
	userID, authErr := deps.Auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if authErr != nil {
		return "", true, c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
	}
	entry, lookupErr := deps.Directory.Lookup(c.Request().Context(), userID)
	if lookupErr != nil {
		c.Logger().Error(lookupErr)
		return "", true, c.JSON(http.StatusInternalServerError, errorResponse{Error: lookupErr.Error()})
	}
	if !domain.HasCapability(entry, domain.CapabilitySuperAdmin) {
		return "", true, c.JSON(http.StatusForbidden, errorResponse{Error: "Forbidden"})
	}
	return userID, false, nil
}

func listTasks(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newBoardRequestMetrics(deps.Logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, handled, herr := requireSuperAdmin(c, deps)
		metrics.ObserveAuth(time.Since(authStart))
		if handled {
			metrics.SetErrorStage("auth")
			err = herr
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := deps.Workflow.ListTasks(ctx)
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: fetchErr.Error()})
			return err
		}
		out := make([]taskWithProgress, 0, len(tasks))
		for _, t := range tasks {
			p, perr := deps.Workflow.TaskProgress(ctx, t.ID)
			if perr != nil {
				metrics.SetErrorStage("storage")
				c.Logger().Error(perr)
				err = c.JSON(http.StatusInternalServerError, errorResponse{Error: perr.Error()})
				return err
			}
			out = append(out, taskWithProgress{Task: t, Progress: p})
		}
		metrics.ObserveFetch(time.Since(fetchStart))
		metrics.SetTasksReturned(len(out))
		err = c.JSON(http.StatusOK, out)
		return err
	}
}

func createTask(deps Deps) echo.HandlerFunc {
	type request struct {
		Title    string `json:"title"`
		Priority string `json:"priority"`
	}
	return func(c echo.Context) error {
		userID, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		var req request
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid input"})
		}
		task, err := deps.Workflow.CreateTask(c.Request().Context(), req.Title, userID, req.Priority)
		if err != nil {
			if errors.Is(err, domain.ErrEmptyTitle) {
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(deps Deps) echo.HandlerFunc {
	type request struct {
		Title      *string `json:"title"`
		Status     *string `json:"status"`
		Priority   *string `json:"priority"`
		AssignedTo *string `json:"assignedTo"`
	}
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		var req request
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid input"})
		}
		upd := domain.TaskUpdate{Title: req.Title, Status: req.Status, Priority: req.Priority, AssignedTo: req.AssignedTo}
		task, notification, err := deps.Workflow.UpdateTask(c.Request().Context(), c.Param("id"), upd)
		if err != nil {
			if errors.Is(err, domain.ErrTaskNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		enqueueNotification(c, deps, notification)
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		if err := deps.Workflow.DeleteTask(c.Request().Context(), c.Param("id")); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listSubtasks(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		subs, err := deps.Workflow.ListSubtasks(c.Request().Context(), c.Param("id"))
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, subs)
	}
}

func addSubtask(deps Deps) echo.HandlerFunc {
	type request struct {
		Title string `json:"title"`
	}
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		var req request
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid input"})
		}
		sub, err := deps.Workflow.AddSubtask(c.Request().Context(), c.Param("id"), req.Title)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrEmptyTitle):
				return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
			case errors.Is(err, domain.ErrTaskNotFound):
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, sub)
	}
}

func toggleSubtask(deps Deps) echo.HandlerFunc {
	type request struct {
		// Done is the target state the caller computed, not a request to
		// flip whatever is stored.
		Done *bool `json:"done"`
	}
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		var req request
		if err := decodeBody(c, &req); err != nil || req.Done == nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid input"})
		}
		sub, err := deps.Workflow.ToggleSubtask(c.Request().Context(), c.Param("id"), c.Param("sid"), *req.Done)
		if err != nil {
			if errors.Is(err, domain.ErrSubtaskNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, sub)
	}
}

func deleteSubtask(deps Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		if err := deps.Workflow.DeleteSubtask(c.Request().Context(), c.Param("id"), c.Param("sid")); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func reassignSubtask(deps Deps) echo.HandlerFunc {
	type request struct {
		AssignedTo string `json:"assignedTo"`
	}
	return func(c echo.Context) error {
		_, handled, err := requireSuperAdmin(c, deps)
		if handled {
			return err
		}
		var req request
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid input"})
		}
		sub, notification, err := deps.Workflow.ReassignSubtask(c.Request().Context(), c.Param("id"), c.Param("sid"), req.AssignedTo)
		if err != nil {
			if errors.Is(err, domain.ErrSubtaskNotFound) {
				return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		enqueueNotification(c, deps, notification)
		return c.JSON(http.StatusOK, sub)
	}
}

// enqueueNotification hands an assignment notification to the dispatch
// queue. The mutation that produced it has already succeeded; a failure here
// is logged and goes no further.
func enqueueNotification(c echo.Context, deps Deps, n *domain.AssignmentNotification) {
	if n == nil {
		return
	}
	if err := deps.Queue.EnqueueNotification(c.Request().Context(), *n); err != nil {
		deps.Logger.WithFields(log.Fields{
			"assignee": n.AssigneeID,
			"kind":     n.Kind,
		}).WithError(err).Error("assignment notification enqueue failed")
	}
}

func sendAssignmentSMS(deps Deps) echo.HandlerFunc {
	type request struct {
		Type             string `json:"type"`
		AssignedToUserID string `json:"assignedToUserId"`
		Title            string `json:"title"`
		Identifier       string `json:"identifier"`
		Priority         string `json:"priority"`
	}
	return func(c echo.Context) error {
		var req request
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, smsResponse{Success: false, Error: "Invalid input"})
		}
		if req.AssignedToUserID == "" {
			return c.JSON(http.StatusBadRequest, smsResponse{Success: false, Error: "assignedToUserId is required"})
		}
		kind := req.Type
		if kind != domain.KindTicket {
			kind = domain.KindTask
		}

		res := deps.Dispatcher.Dispatch(c.Request().Context(), domain.AssignmentNotification{
			Kind:       kind,
			AssigneeID: req.AssignedToUserID,
			Title:      req.Title,
			Identifier: req.Identifier,
			Priority:   req.Priority,
		})
		if res.Err != nil {
			c.Logger().Error(res.Err)
			return c.JSON(http.StatusInternalServerError, smsResponse{Success: false, Error: res.Err.Error()})
		}
		if !res.Success && res.Reason == notify.ReasonMisconfigured {
			return c.JSON(http.StatusBadRequest, smsResponse{Success: false, Error: res.Reason})
		}
		return c.JSON(http.StatusOK, smsResponse{Success: res.Success, Message: res.Reason, Response: res.Response})
	}
}

func createBillingPortal(deps Deps) echo.HandlerFunc {
	type request struct {
		ReturnURL string `json:"return_url"`
	}
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "No authorization header"})
		}
		userID, err := deps.Auth.UserIDFromAuthHeader(header)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		}

		var req request
		// The body is optional; a missing or undecodable body falls back to
		// the default return URL.
		_ = decodeBody(c, &req)
		returnURL := req.ReturnURL
		if returnURL == "" {
			returnURL = deps.BillingReturnURL
		}

		settings, err := deps.Settings.LoadSettings(ctx)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		creds := domain.StripeCredentialsFromSettings(settings)
		if !creds.Complete() {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "Stripe not configured"})
		}

		entry, err := deps.Directory.Lookup(ctx, userID)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		if entry == nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
		}

		gateway := deps.NewGateway(creds.SecretKey)

		customerID := entry.StripeCustomerID
		if customerID == "" {
			customerID, err = gateway.CreateCustomer(ctx, entry.Email, entry.Name, userID)
			if err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to create Stripe customer"})
			}
			// Persist the customer record id before opening the portal so a
			// later failure cannot strand a second customer.
			if err := deps.Directory.SetStripeCustomerID(ctx, userID, customerID); err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
			}
		}

		url, err := gateway.CreatePortalSession(ctx, customerID, returnURL)
		if err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to create billing portal session"})
		}
		return c.JSON(http.StatusOK, map[string]string{"url": url})
	}
}
