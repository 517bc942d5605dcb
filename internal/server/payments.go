package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"campushustle/internal/domain"
	"campushustle/internal/engine"
)

func registerPayments(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "pay-for-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/pay",
		Summary:     "Pay the owner of an in-progress hustle by mobile money",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   PayForTaskRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.PayForTask(ctx, input.TaskID, userID, input.Body.PhoneNumber)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-payment",
		Method:        http.MethodPost,
		Path:          "/payments",
		Summary:       "Record a pending payment intent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreatePaymentRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateIntent(ctx, engine.CreateIntentOptions{
			TaskID:  input.Body.TaskID,
			Amount:  input.Body.Amount,
			PayerID: userID,
			PayeeID: input.Body.PayeeID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "initiate-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{reference}/initiate",
		Summary:     "Send a pending intent to the gateway",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Reference string                 `path:"reference"`
		Body      InitiatePaymentRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		existing, err := e.GetIntentByReference(ctx, input.Reference)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.PayerID != userID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "only the payer can initiate this payment", nil)
		}
		p, err := e.InitiateExternalPayment(ctx, input.Body.PhoneNumber, input.Body.Amount, input.Reference)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-payments",
		Method:      http.MethodGet,
		Path:        "/payments",
		Summary:     "Payments I made or received",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.PaymentIntent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListUserPayments(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PaymentIntent `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-payment",
		Method:      http.MethodGet,
		Path:        "/payments/{payment_id}",
		Summary:     "Get payment intent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PaymentID string `path:"payment_id"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetIntent(ctx, input.PaymentID)
		if err != nil {
			return nil, handleError(err)
		}
		if p.PayerID != userID && p.PayeeID != userID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "not found", nil)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-payment-by-reference",
		Method:      http.MethodGet,
		Path:        "/payments/by-reference/{reference}",
		Summary:     "Get payment intent by gateway reference",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Reference string `path:"reference"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetIntentByReference(ctx, input.Reference)
		if err != nil {
			return nil, handleError(err)
		}
		if p.PayerID != userID && p.PayeeID != userID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "not found", nil)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-callback",
		Method:      http.MethodPost,
		Path:        "/payments/callback",
		Summary:     "Gateway status callback",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Secret string                 `header:"X-Hustle-Gateway-Secret"`
		Body   PaymentCallbackRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		if !callbackSecretMatches(authCfg.CallbackSecret, input.Secret) {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
		}
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		p, err := e.UpdatePaymentStatus(ctx, input.Body.Reference, input.Body.Status, "gateway")
		if err != nil {
			return nil, handleError(err)
		}
		authCfg.logger().Logf("[INFO] payment %s is now %s", p.Reference, p.Status)
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: p}, nil
	})
}
