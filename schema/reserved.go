package schema

import "strings"

// reserved holds the words reserved by at least one supported dialect
// (SQLite, PostgreSQL, MySQL). Identifiers are emitted unquoted, so an
// entity or column named after one of them is rejected at registration.
var reserved = func() map[string]bool {
	words := strings.Fields(`
		accessible add all alter analyse analyze and any array as asc
		asensitive authorization before between bigint binary blob both by
		call cascade case cast change char character check collate column
		condition constraint continue convert create cross cube cume_dist
		current_catalog current_date current_role current_schema
		current_time current_timestamp current_user cursor database
		databases day_hour day_microsecond day_minute day_second dec decimal
		declare default deferrable delayed delete dense_rank desc describe
		deterministic distinct distinctrow div do double drop dual each
		else elseif empty enclosed end escape escaped except exists exit
		explain false fetch first_value float float4 float8 for force
		foreign freeze from full fulltext function generated get glob grant
		group grouping groups having high_priority hour_microsecond
		hour_minute hour_second if ignore ilike in index infile initially
		inner inout insensitive insert int int1 int2 int3 int4 int8 integer
		intersect interval into is isnull iterate join json_table key keys
		kill lag last_value lateral lead leading leave left like limit
		linear lines load localtime localtimestamp lock long longblob
		longtext loop low_priority master_bind master_ssl_verify_server_cert
		match maxvalue mediumblob mediumint mediumtext middleint
		minute_microsecond minute_second mod modifies natural not notnull
		no_write_to_binlog nth_value ntile null numeric of offset on only
		optimize optimizer_costs option optionally or order out outer
		outfile over overlaps partition percent_rank placing precision
		primary procedure purge range rank read reads read_write real
		recursive references regexp release rename repeat replace require
		resignal restrict return returning revoke right rlike row rows
		row_number schema schemas second_microsecond select sensitive
		separator session_user set show signal similar smallint some
		spatial specific sql sqlexception sqlstate sqlwarning
		sql_big_result sql_calc_found_rows sql_small_result ssl starting
		stored straight_join symmetric system table tablesample terminated
		then tinyblob tinyint tinytext to trailing trigger true undo union
		unique unlock unsigned update usage use user using utc_date
		utc_time utc_timestamp values varbinary varchar varcharacter
		variadic varying verbose virtual when where while window with
		write xor year_month zerofill
	`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// isReserved reports whether s is a reserved SQL word in any supported
// dialect.
func isReserved(s string) bool {
	return reserved[strings.ToLower(s)]
}
