// Package fixture builds the service schema and a small worked example
// (the "study"/"penguin"/"egg" tables chained by study_name and
// individual_id) against any db.DB. It backs the core's own tests and
// the CLI's "demo" command.
package fixture

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"gitlab.com/rltbl/relatable/db"
	"gitlab.com/rltbl/relatable/rerr"
)

// TablesetName names the worked example's tableset configuration row,
// chaining "study" -> "penguin" -> "egg" (penguin.study_name =
// study.study_name, egg.individual_id = penguin.individual_id).
const TablesetName = "combined"

// pkeyClause gives the dialect-specific autoincrementing primary key
// fragment used when creating the service tables below.
func pkeyClause(kind db.Kind) string {
	if kind == db.Postgres {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// Build creates the four required service tables (table, user,
// change, history) plus an optional tableset table, and the
// study/penguin/egg worked-example tables, seeded with a handful of rows. It is safe to
// call against a freshly created, empty database only: it does not
// drop or check for pre-existing tables.
func Build(ctx context.Context, d db.DB) errors.E {
	if errE := buildServiceTables(ctx, d); errE != nil {
		return errE
	}
	if errE := buildTableset(ctx, d); errE != nil {
		return errE
	}
	if errE := buildStudy(ctx, d); errE != nil {
		return errE
	}
	if errE := buildPenguin(ctx, d); errE != nil {
		return errE
	}
	if errE := buildEgg(ctx, d); errE != nil {
		return errE
	}
	return nil
}

func exec(ctx context.Context, d db.DB, sql string) errors.E {
	_, errE := d.Query(ctx, sql, nil)
	return errE
}

func buildServiceTables(ctx context.Context, d db.DB) errors.E {
	pkey := pkeyClause(d.Kind())

	if errE := exec(ctx, d, `CREATE TABLE "table" (
		"_id" `+pkey+`,
		"_order" INTEGER UNIQUE,
		"table" TEXT UNIQUE NOT NULL,
		"path" TEXT
	)`); errE != nil {
		return errE
	}

	if errE := exec(ctx, d, `CREATE TABLE "user" (
		"name" TEXT PRIMARY KEY,
		"color" TEXT,
		"cursor" TEXT,
		"datetime" TIMESTAMP
	)`); errE != nil {
		return errE
	}

	if errE := exec(ctx, d, `CREATE TABLE "change" (
		"change_id" `+pkey+`,
		"datetime" TIMESTAMP,
		"user" TEXT NOT NULL,
		"action" TEXT NOT NULL,
		"table" TEXT NOT NULL,
		"description" TEXT,
		"content" TEXT NOT NULL
	)`); errE != nil {
		return errE
	}

	if errE := exec(ctx, d, `CREATE TABLE "history" (
		"history_id" `+pkey+`,
		"change_id" INTEGER NOT NULL,
		"table" TEXT NOT NULL,
		"row" INTEGER NOT NULL,
		"before" TEXT,
		"after" TEXT
	)`); errE != nil {
		return errE
	}

	return nil
}

func buildTableset(ctx context.Context, d db.DB) errors.E {
	pkey := pkeyClause(d.Kind())

	if errE := exec(ctx, d, `CREATE TABLE "tableset" (
		"_id" `+pkey+`,
		"_order" INTEGER UNIQUE,
		"tableset" TEXT,
		"table" TEXT,
		"distinct" TEXT,
		"using" TEXT
	)`); errE != nil {
		return errE
	}

	if errE := exec(ctx, d, `INSERT INTO "tableset" ("_id", "_order", "tableset", "table", "distinct", "using") VALUES
		(1, 1000, '`+TablesetName+`', 'study', 'study_name', NULL),
		(2, 2000, '`+TablesetName+`', 'penguin', 'individual_id', 'study_name'),
		(3, 3000, '`+TablesetName+`', 'egg', 'egg_id', 'individual_id')
	`); errE != nil {
		return errE
	}

	return registerTable(ctx, d, "tableset", "tableset.tsv", 3)
}

func buildStudy(ctx context.Context, d db.DB) errors.E {
	pkey := pkeyClause(d.Kind())

	if errE := exec(ctx, d, `CREATE TABLE "study" (
		"_id" `+pkey+`,
		"_order" INTEGER UNIQUE,
		"study_name" TEXT UNIQUE,
		"description" TEXT
	)`); errE != nil {
		return errE
	}
	if errE := exec(ctx, d, `INSERT INTO "study" ("_id", "_order", "study_name", "description") VALUES
		(1, 1000, 'FAKE123', 'Fake Study 123')
	`); errE != nil {
		return errE
	}
	return registerTable(ctx, d, "study", "study.tsv", 1)
}

func buildPenguin(ctx context.Context, d db.DB) errors.E {
	pkey := pkeyClause(d.Kind())

	if errE := exec(ctx, d, `CREATE TABLE "penguin" (
		"_id" `+pkey+`,
		"_order" INTEGER UNIQUE,
		"study_name" TEXT,
		"sample_number" INTEGER,
		"individual_id" TEXT,
		"species" TEXT,
		"island" TEXT
	)`); errE != nil {
		return errE
	}

	if errE := exec(ctx, d, `INSERT INTO "penguin"
		("_id", "_order", "study_name", "sample_number", "individual_id", "species", "island") VALUES
		(1, 1000, 'FAKE123', 1, 'N1', 'Adelie', 'Torgersen'),
		(2, 2000, 'FAKE123', 2, 'N2', 'Adelie', 'Torgersen'),
		(3, 3000, 'FAKE123', 3, 'N3', 'Gentoo', 'Biscoe')
	`); errE != nil {
		return errE
	}

	return registerTable(ctx, d, "penguin", "penguin.tsv", 2)
}

func buildEgg(ctx context.Context, d db.DB) errors.E {
	pkey := pkeyClause(d.Kind())

	if errE := exec(ctx, d, `CREATE TABLE "egg" (
		"_id" `+pkey+`,
		"_order" INTEGER UNIQUE,
		"egg_id" TEXT UNIQUE,
		"individual_id" TEXT,
		"clutch_completion" TEXT,
		"date_egg" TEXT
	)`); errE != nil {
		return errE
	}

	if errE := exec(ctx, d, `INSERT INTO "egg"
		("_id", "_order", "egg_id", "individual_id", "clutch_completion", "date_egg") VALUES
		(1, 1000, 'E1', 'N1', 'Yes', '2007-11-11'),
		(2, 2000, 'E2', 'N2', 'No', '2007-11-12')
	`); errE != nil {
		return errE
	}

	return registerTable(ctx, d, "egg", "egg.tsv", 4)
}

// registerTable records table in the service "table" catalogue at
// order, so LoadTable's caller-visible view of "which tables exist"
// includes it.
func registerTable(ctx context.Context, d db.DB, table, path string, order int64) errors.E {
	kind := d.Kind()
	ph := db.List(kind, 4)
	_, errE := d.Query(ctx, `INSERT INTO "table" ("_order", "table", "path", "_id") VALUES (`+ph[0]+`, `+ph[1]+`, `+ph[2]+`, `+ph[3]+`)`,
		[]any{order * 1000, table, path, order})
	if errE != nil {
		return rerr.Data("registering table %q: %v", table, errE)
	}
	return nil
}
