//go:build unix

package utils_test

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/reqbatch/internal/utils"
)

func TestRegisterSignalHandlerNotifiesUntilStopped(testInstance *testing.T) {
	received := make(chan os.Signal, 4)
	stop := utils.RegisterSignalHandler(func(receivedSignal os.Signal) {
		received <- receivedSignal
	}, syscall.SIGUSR1)

	require.NoError(testInstance, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	select {
	case receivedSignal := <-received:
		require.Equal(testInstance, syscall.SIGUSR1, receivedSignal)
	case <-time.After(5 * time.Second):
		require.Fail(testInstance, "signal was not delivered")
	}

	stop()
	stop()
}
