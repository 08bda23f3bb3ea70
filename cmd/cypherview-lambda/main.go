package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/app"
	"github.com/systemshift/cypherview/internal/config"
	"github.com/systemshift/cypherview/internal/logging"
)

var (
	// chiLambda wraps the router for API Gateway proxy events.
	chiLambda *chiadapter.ChiLambda
	logger    *zap.Logger
	coldStart = true
)

// init runs once per cold start. Configuration comes from the environment
// only: NEO4J_URI_<db>, NEO4J_USERNAME_<db>, NEO4J_PASSWORD_<db> and the
// CYPHERVIEW_* settings.
func init() {
	started := time.Now()

	cfg, err := config.Load("")
	if err != nil {
		logging.Must("error", false).Fatal("Failed to load configuration", zap.Error(err))
	}
	logger = logging.Must(cfg.Log.Level, false)

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	chiLambda = chiadapter.New(a.Router())

	logger.Info("Lambda cold start completed", zap.Duration("duration", time.Since(started)))
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	logger.Debug("Lambda received request",
		zap.String("method", req.HTTPMethod),
		zap.String("path", req.Path),
		zap.String("request_id", req.RequestContext.RequestID),
	)

	resp, err := chiLambda.ProxyWithContext(ctx, req)
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	// Every response carries the wildcard origin, even without an Origin
	// header on the request.
	if _, ok := resp.Headers["Access-Control-Allow-Origin"]; !ok &&
		http.Header(resp.MultiValueHeaders).Get("Access-Control-Allow-Origin") == "" {
		resp.Headers["Access-Control-Allow-Origin"] = "*"
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	}

	if resp.StatusCode >= 400 {
		logger.Warn("Lambda error response",
			zap.String("path", req.Path),
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", resp.Body),
		)
	}
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
