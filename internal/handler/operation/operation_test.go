package operation_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/dwarvesf/secret-bridge/internal/handler/operation"
	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/orchestrator"
	"github.com/dwarvesf/secret-bridge/internal/types/environments"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Begin(ctx context.Context, intent model.TransferIntent) (*model.Operation, error) {
	args := m.Called(ctx, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOrchestrator) ContinueInBackground(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockOrchestrator) Get(id string) (*model.Operation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Operation), args.Error(1)
}

func (m *MockOrchestrator) Confirmations(id string) (model.ConfirmationProgress, error) {
	args := m.Called(id)
	return args.Get(0).(model.ConfirmationProgress), args.Error(1)
}

func (m *MockOrchestrator) LastIssue(id string) (*orchestrator.Issue, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orchestrator.Issue), args.Error(1)
}

func (m *MockOrchestrator) Polling(id string) bool {
	return m.Called(id).Bool(0)
}

func (m *MockOrchestrator) StartPolling(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockOrchestrator) Abandon(id string) error {
	return m.Called(id).Error(0)
}

type MockOperationStore struct {
	mock.Mock
}

func (m *MockOperationStore) CreateOperation(ctx context.Context, id, transactionHash string) (*model.OperationRecord, error) {
	args := m.Called(ctx, id, transactionHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OperationRecord), args.Error(1)
}

func (m *MockOperationStore) UpdateOperation(ctx context.Context, id string, req model.UpdateOperationRequest) (*model.OperationRecord, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OperationRecord), args.Error(1)
}

func (m *MockOperationStore) GetOperation(ctx context.Context, id string) (*model.OperationEnvelope, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OperationEnvelope), args.Error(1)
}

func (m *MockOperationStore) GetSwap(ctx context.Context, id string) (*model.SwapRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SwapRecord), args.Error(1)
}

func (m *MockOperationStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Token), args.Error(1)
}

func (m *MockOperationStore) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type apiResponse struct {
	Data        json.RawMessage `json:"data"`
	Error       *string         `json:"error"`
	Message     string          `json:"message"`
	OperationID string          `json:"operationId"`
	TxHash      string          `json:"txHash"`
}

func sampleOperation(id string, status model.OperationStatus) *model.Operation {
	return &model.Operation{
		ID:              id,
		Direction:       model.DirectionScrtToEth,
		AssetKind:       model.AssetKindNative,
		AssetIdentifier: "SCRT",
		Asset:           model.CanonicalAsset{Symbol: "SCRT", Decimals: 6, Kind: model.AssetKindNative},
		Amount:          "1500000",
		Decimals:        6,
		SourceAddress:   "secret1q5zs2pg9q5zs2pg9q5zs2pg9q5zs2pg9pz5hu2",
		DestAddress:     "0x52908400098527886E0F7030069857D2E4169EE7",
		Status:          status,
		CreatedAt:       time.Now(),
		LastUpdatedAt:   time.Now(),
	}
}

var _ = Describe("Operation API", func() {
	var (
		orch    *MockOrchestrator
		store   *MockOperationStore
		history mirror.IMirror
		router  *gin.Engine
	)

	do := func(method, path, body string) (*httptest.ResponseRecorder, apiResponse) {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp apiResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return w, resp
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		log := logger.New(environments.Test)

		var err error
		history, err = mirror.Open(filepath.Join(GinkgoT().TempDir(), "mirror.db"), log)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(history.Close)

		orch = &MockOrchestrator{}
		store = &MockOperationStore{}
		h := operation.New(orch, history, store, log)

		router = gin.New()
		router.POST("/transfers", h.CreateTransfer)
		router.GET("/operations", h.ListOperations)
		router.GET("/operations/:id", h.GetOperation)
		router.DELETE("/operations/:id", h.DeleteOperation)
		router.POST("/operations/:id/poll", h.PollOperation)
		router.POST("/operations/:id/abandon", h.AbandonOperation)
		router.GET("/swaps/:id", h.GetSwap)
	})

	Describe("POST /transfers", func() {
		body := `{"direction":"scrt_to_eth","assetKind":"native","sourceAddress":"secret1q5zs2pg9q5zs2pg9q5zs2pg9q5zs2pg9pz5hu2","destAddress":"0x52908400098527886E0F7030069857D2E4169EE7","amount":"1.5","assetIdentifier":"SCRT"}`

		It("begins the operation and continues it in the background", func() {
			op := sampleOperation("op-1", model.OperationStatusPendingSubmit)
			orch.On("Begin", mock.Anything, mock.MatchedBy(func(intent model.TransferIntent) bool {
				return intent.Amount == "1.5" && intent.Direction == model.DirectionScrtToEth
			})).Return(op, nil)
			orch.On("ContinueInBackground", "op-1").Return(nil)

			w, resp := do(http.MethodPost, "/transfers", body)

			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(resp.Error).To(BeNil())
			var got operation.OperationResponse
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got.Operation.ID).To(Equal("op-1"))
			Expect(got.Source).To(Equal("live"))
			orch.AssertExpectations(GinkgoT())
		})

		It("rejects malformed bodies before reaching the orchestrator", func() {
			w, resp := do(http.MethodPost, "/transfers", `{"direction":"scrt_to_eth"}`)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(resp.Error).NotTo(BeNil())
			orch.AssertNotCalled(GinkgoT(), "Begin", mock.Anything, mock.Anything)
		})

		It("maps validation errors to 400", func() {
			orch.On("Begin", mock.Anything, mock.Anything).
				Return(nil, &orchestrator.OperationError{Kind: orchestrator.ErrValidation, Cause: errors.New("amount must be positive")})

			w, resp := do(http.MethodPost, "/transfers", body)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(*resp.Error).To(ContainSubstring("amount must be positive"))
			orch.AssertNotCalled(GinkgoT(), "ContinueInBackground", mock.Anything)
		})

		It("reports a closed orchestrator with the operation id", func() {
			orch.On("Begin", mock.Anything, mock.Anything).Return(sampleOperation("op-2", model.OperationStatusPendingSubmit), nil)
			orch.On("ContinueInBackground", "op-2").
				Return(&orchestrator.OperationError{Kind: orchestrator.ErrInvalidState, OperationID: "op-2"})

			w, resp := do(http.MethodPost, "/transfers", body)

			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(resp.OperationID).To(Equal("op-2"))
		})
	})

	Describe("GET /operations/:id", func() {
		It("shows live state with confirmation progress", func() {
			op := sampleOperation("op-live", model.OperationStatusAwaitingConfirmation)
			op.SourceTxHash = "0xsrc"
			orch.On("Get", "op-live").Return(op, nil)
			orch.On("Polling", "op-live").Return(true)
			orch.On("Confirmations", "op-live").Return(model.ConfirmationProgress{Required: 12, Observed: 4}, nil)
			orch.On("LastIssue", "op-live").Return(nil, nil)

			w, resp := do(http.MethodGet, "/operations/op-live", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var got operation.OperationResponse
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got.Polling).To(BeTrue())
			Expect(got.Confirmations).NotTo(BeNil())
			Expect(got.Confirmations.Observed).To(BeEquivalentTo(4))
			Expect(got.Operation.SourceTxHash).To(Equal("0xsrc"))
			Expect(got.Issue).To(BeNil())
		})

		It("shows a missing record as a recoverable issue with the tx hash", func() {
			op := sampleOperation("op-unrecorded", model.OperationStatusAwaitingConfirmation)
			op.SourceTxHash = "0xsrc"
			orch.On("Get", "op-unrecorded").Return(op, nil)
			orch.On("Polling", "op-unrecorded").Return(true)
			orch.On("Confirmations", "op-unrecorded").Return(model.ConfirmationProgress{}, nil)
			orch.On("LastIssue", "op-unrecorded").Return(&orchestrator.Issue{
				Kind:        orchestrator.ErrRecordingFailed.Error(),
				TxHash:      "0xsrc",
				Message:     "recording failed: operation op-unrecorded (tx 0xsrc)",
				Recoverable: true,
				At:          time.Now(),
			}, nil)

			w, resp := do(http.MethodGet, "/operations/op-unrecorded", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var got operation.OperationResponse
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got.Issue).NotTo(BeNil())
			Expect(got.Issue.Kind).To(Equal("recording failed"))
			Expect(got.Issue.TxHash).To(Equal("0xsrc"))
			Expect(got.Issue.Recoverable).To(BeTrue())
			Expect(got.Confirmations).To(BeNil())
		})

		It("falls back to local history", func() {
			op := sampleOperation("op-old", model.OperationStatusConfirmed)
			op.SourceTxHash = "0xold"
			Expect(history.Save(op)).To(Succeed())
			orch.On("Get", "op-old").Return(nil, &orchestrator.OperationError{Kind: orchestrator.ErrOperationNotFound, OperationID: "op-old"})

			w, resp := do(http.MethodGet, "/operations/op-old", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var got operation.OperationResponse
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got.Source).To(Equal("mirror"))
			Expect(got.Operation.Status).To(Equal(model.OperationStatusConfirmed))
		})

		It("returns 404 for unknown operations", func() {
			orch.On("Get", "nope").Return(nil, &orchestrator.OperationError{Kind: orchestrator.ErrOperationNotFound, OperationID: "nope"})

			w, _ := do(http.MethodGet, "/operations/nope", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /operations", func() {
		BeforeEach(func() {
			done := sampleOperation("op-done", model.OperationStatusConfirmed)
			done.SourceTxHash = "0xa"
			inFlight := sampleOperation("op-flight", model.OperationStatusSubmitted)
			inFlight.SourceTxHash = "0xb"
			Expect(history.Save(done)).To(Succeed())
			Expect(history.Save(inFlight)).To(Succeed())
		})

		It("lists every mirrored operation", func() {
			w, resp := do(http.MethodGet, "/operations", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var got []model.OperationSummary
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got).To(HaveLen(2))
		})

		It("filters to in-flight operations", func() {
			w, resp := do(http.MethodGet, "/operations?inflight=true", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var got []model.OperationSummary
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got).To(HaveLen(1))
			Expect(got[0].ID).To(Equal("op-flight"))
		})
	})

	Describe("DELETE /operations/:id", func() {
		It("forgets the local entry only", func() {
			op := sampleOperation("op-x", model.OperationStatusConfirmed)
			op.SourceTxHash = "0xx"
			Expect(history.Save(op)).To(Succeed())

			w, _ := do(http.MethodDelete, "/operations/op-x", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			_, ok := history.Get("op-x")
			Expect(ok).To(BeFalse())
			orch.AssertNotCalled(GinkgoT(), "Abandon", mock.Anything)
		})
	})

	Describe("POST /operations/:id/poll", func() {
		It("starts a poller", func() {
			orch.On("StartPolling", "op-1").Return(nil)

			w, _ := do(http.MethodPost, "/operations/op-1/poll", "")
			Expect(w.Code).To(Equal(http.StatusAccepted))
		})

		It("refuses operations that were never submitted", func() {
			orch.On("StartPolling", "op-1").Return(&orchestrator.OperationError{Kind: orchestrator.ErrInvalidState, OperationID: "op-1"})

			w, resp := do(http.MethodPost, "/operations/op-1/poll", "")
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(resp.OperationID).To(Equal("op-1"))
		})
	})

	Describe("POST /operations/:id/abandon", func() {
		It("abandons an unsubmitted operation", func() {
			orch.On("Abandon", "op-1").Return(nil)

			w, _ := do(http.MethodPost, "/operations/op-1/abandon", "")
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("keeps the tx hash when it is too late", func() {
			orch.On("Abandon", "op-1").Return(&orchestrator.OperationError{
				Kind:        orchestrator.ErrAlreadySubmitted,
				OperationID: "op-1",
				TxHash:      "0xsrc",
			})

			w, resp := do(http.MethodPost, "/operations/op-1/abandon", "")
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(resp.TxHash).To(Equal("0xsrc"))
		})
	})

	Describe("GET /swaps/:id", func() {
		It("returns the record service swap", func() {
			store.On("GetSwap", mock.Anything, "swap-1").Return(&model.SwapRecord{
				ID:        "swap-1",
				SrcTxHash: "0xsrc",
				DstTxHash: "ABCDEF",
				Status:    model.BackendStatusConfirmed,
			}, nil)

			w, resp := do(http.MethodGet, "/swaps/swap-1", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var got model.SwapRecord
			Expect(json.Unmarshal(resp.Data, &got)).To(Succeed())
			Expect(got.DstTxHash).To(Equal("ABCDEF"))
		})

		It("maps a missing swap to 404", func() {
			store.On("GetSwap", mock.Anything, "swap-2").Return(nil, operationstore.ErrNotFound)

			w, _ := do(http.MethodGet, "/swaps/swap-2", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("maps other failures to 502", func() {
			store.On("GetSwap", mock.Anything, "swap-3").Return(nil, errors.New("status code: 503"))

			w, _ := do(http.MethodGet, "/swaps/swap-3", "")
			Expect(w.Code).To(Equal(http.StatusBadGateway))
		})
	})
})
