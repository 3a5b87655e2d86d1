package database

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConnectSQLiteAndMigrate(t *testing.T) {
	db, err := Connect("sqlite", "file:database_test?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"students", "assignments", "submissions", "submission_grade_histories", "activity_logs"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect("oracle", "dsn")
	require.ErrorContains(t, err, "unsupported database driver")

	_, err = Connect("postgres", "")
	require.Error(t, err)
}

func TestConnectRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	client, err := ConnectRedis("redis://" + mini.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = ConnectRedis("")
	require.Error(t, err)
}

func TestConnectNATSOptional(t *testing.T) {
	conn, err := ConnectNATS("", "coursework", zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, conn)
}
