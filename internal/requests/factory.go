package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tyemirov/reqbatch/pkg/taskrunner"
)

const (
	taskLabelTemplateConstant    = "request-%d"
	uniqueReasonTemplateConstant = "%s - Request #%d - %d"
	missingClientMessageConstant = "requests: client is required"
)

// NewTaskFactory returns a factory producing one request task per index.
// Task n (1-based) is labelled request-<n> and carries a unique reason built
// from the template reason, n, and the clock in milliseconds at execution.
func NewTaskFactory(client Client, template CreateParameters, clock func() time.Time) (taskrunner.Factory, error) {
	if client == nil {
		return nil, errors.New(missingClientMessageConstant)
	}
	if clock == nil {
		clock = time.Now
	}

	return func(index int) (taskrunner.TaskDescriptor, error) {
		requestNumber := index + 1
		return taskrunner.TaskDescriptor{
			Label: fmt.Sprintf(taskLabelTemplateConstant, requestNumber),
			Body: func(executionContext context.Context) (any, error) {
				parameters := template
				currentTime := clock()
				parameters.RequestInfo.Timestamp = currentTime.Unix()
				parameters.ContentData.Reason = fmt.Sprintf(uniqueReasonTemplateConstant, template.ContentData.Reason, requestNumber, currentTime.UnixMilli())

				confirmation, createError := client.CreateRequest(executionContext, parameters)
				if createError != nil {
					return nil, createError
				}
				requestData, waitError := confirmation.Wait(executionContext)
				if waitError != nil {
					return nil, waitError
				}
				return requestData, nil
			},
		}, nil
	}, nil
}
