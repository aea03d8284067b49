// Package http exposes a mirror over a JSON HTTP API. It is used by the
// dmirror serve command, which keeps a store loaded in memory for as long as the
// process runs.
//
// Routes:
//
//	GET    /collections                    collection infos
//	GET    /stats                          mirror.Info
//	GET    /metrics                        Prometheus metrics
//	POST   /flush                          wait until all issued writes were persisted
//	GET    /c/{collection}                 all records, ?field=&value= matches, ?select=a,b projects
//	GET    /c/{collection}/count           number of records
//	POST   /c/{collection}                 insert the JSON record in the body
//	DELETE /c/{collection}                 truncate
//	GET    /c/{collection}/{key}           get
//	PATCH  /c/{collection}/{key}           update with the fields of the JSON object in the body
//	DELETE /c/{collection}/{key}           delete
//	GET    /join/{collection}/{other}      inner join, ?on=&equals= and optional ?select=
//
// Keys and query values are parsed as JSON when possible and used as plain strings
// otherwise, so /c/users/7 addresses the number 7 and /c/users/"7" the string.
//
// A match on a collection without any records answers 204 No Content, a match on a
// filled collection without hits answers an empty array. Bodies above 4 MB are
// rejected with 413.
//
// Until the initial sync finished every collection route answers 503.
// Record lists are returned as JSON arrays, errors as {"error": "..."}.
package http
