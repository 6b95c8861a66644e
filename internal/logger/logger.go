// Package logger constructs the application's zap logger.
package logger

import "go.uber.org/zap"

// NewLogger returns a production SugaredLogger.
func NewLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
