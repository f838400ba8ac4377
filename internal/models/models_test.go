package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetColumns(t *testing.T) {
	stopID, routeID := StopTarget("127").Columns()
	require.NotNil(t, stopID)
	assert.Equal(t, "127", *stopID)
	assert.Nil(t, routeID)

	stopID, routeID = RouteTarget("A").Columns()
	assert.Nil(t, stopID)
	require.NotNil(t, routeID)
	assert.Equal(t, "A", *routeID)
}

func TestTargetFromColumns(t *testing.T) {
	stop := "127"
	route := "A"

	target, err := TargetFromColumns(&stop, nil)
	require.NoError(t, err)
	assert.Equal(t, TargetStop, target.Kind())
	assert.Equal(t, "127", target.ID())

	target, err = TargetFromColumns(nil, &route)
	require.NoError(t, err)
	assert.Equal(t, TargetRoute, target.Kind())
	assert.Equal(t, "A", target.ID())

	_, err = TargetFromColumns(&stop, &route)
	assert.Error(t, err)

	_, err = TargetFromColumns(nil, nil)
	assert.Error(t, err)
}
