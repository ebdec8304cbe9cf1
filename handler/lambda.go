package handler

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Handle serves an API Gateway proxy event. Failures are always expressed as
// HTTP responses; the returned error is reserved for the Lambda runtime.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	in := inbound{
		adapter: "lambda",
		method:  strings.ToUpper(event.HTTPMethod),
		path:    event.Path,
		header:  headerLookup(event.Headers),
		client:  event.RequestContext.Identity.SourceIP,
	}
	if in.client == "" {
		in.client = "unknown"
	}

	if event.IsBase64Encoded {
		// A body that does not decode is left empty and fails the JSON check.
		raw, err := base64.StdEncoding.DecodeString(event.Body)
		if err == nil {
			in.body = raw
		}
	} else {
		in.body = []byte(event.Body)
	}

	return toProxyResponse(h.serve(ctx, in)), nil
}

func toProxyResponse(out outbound) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: out.status,
		Headers:    out.headers,
		Body:       string(out.body),
	}
}

// headerLookup matches header names case-insensitively, as API Gateway
// passes them through in whatever case the client used.
func headerLookup(headers map[string]string) func(string) string {
	return func(name string) string {
		if v, ok := headers[name]; ok {
			return v
		}
		for k, v := range headers {
			if strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}
}
