// Package domain models the chronicle of anti-refugee incidents in Germany
// and the cleaning steps applied before aggregation.
//
// # Data Source
//
// Incidents are published as a paginated web chronicle, one page set per
// year. Each entry carries a date, city, federal state, one or more German
// attack categories, a German description and a source citation. The
// scraper stores each year as attacks_YYYY.csv so reruns resume by year.
//
// # Chronicle Conventions
//
// Dates:
//
//	Entries before 2017 use ISO dates ("2016-03-09").
//	Entries from 2017 onward use day-first dates ("09.03.2017").
//	Anything else is left unparsed and excluded from time bucketing.
//
// Categories:
//
//	Multiple labels are joined with "& " ("Brandanschlag& Sonstige Angriffe").
//	An empty label means "Sonstige Angriffe" (other attacks).
//	German labels map onto the canonical set Other, Assault, Demonstration,
//	Suspected/unconfirmed and Arson. Unknown labels stay unmapped and are
//	reported, never coerced.
//
// Sources:
//
//	Source text is prefixed with the field label "Quelle:", which is removed.
//
// Places:
//
//	City and state are typed by hand upstream. Known typos, aliases and
//	cities that exist in several states are fixed through a correction
//	table (see [Corrections]). The geocoder query is "city, state".
//
// # Locality Keys
//
// District keys are the official municipality key (AGS) of the district.
// The state key is the district key divided by 1000. Regions and the
// country use the sentinel keys -1 (West Germany), -2 (East Germany) and
// 0 (Germany).
package domain
