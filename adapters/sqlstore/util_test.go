package sqlstore_test

import (
	"database/sql"
	"os"
	"testing"

	"github.com/corverroos/truss"
	_ "github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`
	create table engine_events (
		id                 varchar(255) not null,
		workflow_id        varchar(255) not null,
		event_template_id  varchar(255) not null,
		event_type_id      int not null,
		done               bool not null,
		due_date           datetime(3),
		cancellation_type  int,
		document_id        varchar(255),
		data               blob not null,
		created_by         varchar(255) not null,
		updated_by         varchar(255) not null,
		created_at         datetime(3) not null,
		updated_at         datetime(3) not null,

		primary key (id),

		index by_workflow_done (workflow_id, done),
		index by_due (done, due_date)
	)`,
	`
	create table engine_tasks (
		id                 varchar(255) not null,
		workflow_id        varchar(255) not null,
		task_template_id   varchar(255) not null,
		document_id        varchar(255) not null,
		performers         blob not null,
		finished           bool not null,
		cancelled          bool not null,
		meta               blob,

		primary key (id),

		index by_workflow (workflow_id, finished, cancelled)
	)`,
	`
	create table engine_task_performer_units (
		task_id            varchar(255) not null,
		unit_id            varchar(255) not null,
		user_id            varchar(255) not null,

		index by_unit_user (unit_id, user_id)
	)
`,
}

// ConnectForTesting returns a connection to a fresh database with the engine
// schema applied, skipping the test when no mysql instance is reachable.
func ConnectForTesting(t *testing.T) *sql.DB {
	dbc, err := truss.Connect(testURI())
	if err == nil {
		err = dbc.Ping()
		_ = dbc.Close()
	}
	if err != nil {
		t.Skipf("mysql not available: %v", err)
	}

	return truss.ConnectForTesting(t, migrations...)
}

// testURI mirrors truss' default connection lookup.
func testURI() string {
	if uri, ok := os.LookupEnv("TRUSS_TEST_URI"); ok {
		return uri
	}

	sock := "/tmp/mysql.sock"
	if _, err := os.Stat(sock); os.IsNotExist(err) {
		sock = "/var/run/mysqld/mysqld.sock"
	}

	return "mysql://root@unix(" + sock + ")/"
}
