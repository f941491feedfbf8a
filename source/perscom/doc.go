// Package perscom is a directory.Source backed by the PERSCOM REST API.
//
// Forms are listed with GET {BaseURL}/forms?limit=N. The API answers
//
//	{"data": [{"id": 1, "name": "Enlistment"}, ...],
//	 "meta": {"current_page": 1, "last_page": 1, "total": 1}}
//
// Only the first page is read unless Config.FollowPages is set; when the
// remote holds more forms than one page returns, a warning is logged and
// the list is truncated.
package perscom
