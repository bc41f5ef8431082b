package migrate

import "embed"

// Every SQL file under migrations/ ships in the binary so containers and
// integration tests can migrate without the source tree.
//
//go:embed migrations/*.sql
var embedded embed.FS
