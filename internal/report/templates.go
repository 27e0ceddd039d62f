package report

// ReportTemplate is the self-contained run report
const ReportTemplate = `<!DOCTYPE html>
<html lang="en" data-bs-theme="light">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}{{if .RunID}} | {{.RunID}}{{end}}</title>
    {{- if .CSS}}
    <style>{{.CSS}}</style>
    {{- else if .CSSURL}}
    <link rel="stylesheet" href="{{.CSSURL}}">
    {{- end}}
    <style>
        body { padding-top: 2rem; padding-bottom: 2rem; background-color: #f8f9fa; }
        .accordion-button:not(.collapsed) { background-color: #e9ecef; }
        .accordion-button:focus { box-shadow: none; }
        .font-monospace { font-size: 0.9em; }
        .filter-card { cursor: pointer; transition: transform 0.2s ease-in-out, box-shadow 0.2s ease-in-out; }
        .filter-card:hover { transform: translateY(-5px); box-shadow: 0 0.5rem 1rem rgba(0, 0, 0, 0.15); }
        .filter-card.active { border: 3px solid #0d6efd; }
        .log-error { color: #dc3545; font-weight: bold; }
        .screenshot { max-width: 100%; }
    </style>
</head>
<body>
<main class="container">
    <div class="d-flex justify-content-between align-items-center mb-4 pb-3 border-bottom">
        <h1 class="display-6">Test Execution Report</h1>
        <div class="text-end text-muted small">
            <div>Source: {{.Title}}</div>
            {{- if .RunID}}<div>Run: {{.RunID}}</div>{{end}}
            {{- if .GeneratedAt}}<div>Generated: {{.GeneratedAt}}</div>{{end}}
        </div>
    </div>

    <div class="row mb-4" id="summary">
        <div class="col-md mb-3">
            <div id="filter-all" data-filter="all" class="card text-center h-100 filter-card active">
                <div class="card-body">
                    <h5 class="card-title">Total</h5>
                    <p class="card-text fs-1 fw-bold" id="count-total">{{.Summary.Total}}</p>
                </div>
            </div>
        </div>
        <div class="col-md mb-3">
            <div id="filter-passed" data-filter="passed" class="card text-white bg-success text-center h-100 filter-card">
                <div class="card-body">
                    <h5 class="card-title">Passed</h5>
                    <p class="card-text fs-1 fw-bold" id="count-passed">{{.Summary.Passed}}</p>
                </div>
            </div>
        </div>
        <div class="col-md mb-3">
            <div id="filter-failed" data-filter="failed" class="card text-white bg-danger text-center h-100 filter-card">
                <div class="card-body">
                    <h5 class="card-title">Failed</h5>
                    <p class="card-text fs-1 fw-bold" id="count-failed">{{.FailedTotal}}</p>
                </div>
            </div>
        </div>
        <div class="col-md mb-3">
            <div id="filter-skipped" data-filter="skipped" class="card bg-light text-center h-100 filter-card">
                <div class="card-body">
                    <h5 class="card-title">Skipped</h5>
                    <p class="card-text fs-1 fw-bold" id="count-skipped">{{.Summary.Skipped}}</p>
                </div>
            </div>
        </div>
        {{- if or .Summary.XFailed .Summary.XPassed}}
        <div class="col-md mb-3">
            <div id="filter-xfailed" data-filter="xfailed" class="card bg-warning text-center h-100 filter-card">
                <div class="card-body">
                    <h5 class="card-title">XFailed</h5>
                    <p class="card-text fs-1 fw-bold" id="count-xfailed">{{.Summary.XFailed}}</p>
                </div>
            </div>
        </div>
        <div class="col-md mb-3">
            <div id="filter-xpassed" data-filter="xpassed" class="card text-white bg-info text-center h-100 filter-card">
                <div class="card-body">
                    <h5 class="card-title">XPassed</h5>
                    <p class="card-text fs-1 fw-bold" id="count-xpassed">{{.Summary.XPassed}}</p>
                </div>
            </div>
        </div>
        {{- end}}
        <div class="col-md mb-3">
            <div class="card text-center h-100">
                <div class="card-body">
                    <h5 class="card-title">Duration</h5>
                    <p class="card-text fs-3 fw-bold" id="duration">{{.DurationText}}</p>
                    <p class="card-text text-muted small">pass rate {{.PassRate}}</p>
                </div>
            </div>
        </div>
    </div>

    {{- if .Environment}}
    <div class="accordion mb-4" id="environmentAccordion">
        <div class="accordion-item">
            <h2 class="accordion-header" id="env-heading">
                <button class="accordion-button collapsed" type="button" data-bs-toggle="collapse" data-bs-target="#env-collapse" aria-expanded="false" aria-controls="env-collapse">
                    Environment
                </button>
            </h2>
            <div id="env-collapse" class="accordion-collapse collapse" aria-labelledby="env-heading">
                <div class="accordion-body">
                    <table class="table table-bordered table-sm">
                        {{- range .Environment}}
                        <tr><th class="w-25">{{.Key}}</th><td>
                            {{- if .Items}}<ul>{{range .Items}}<li><strong>{{.Key}}:</strong> {{.Value}}</li>{{end}}</ul>
                            {{- else}}{{.Value}}{{end -}}
                        </td></tr>
                        {{- end}}
                    </table>
                </div>
            </div>
        </div>
    </div>
    {{- end}}

    <h2>Results</h2>
    {{- range .Groups}}
    <section class="test-group mb-4" data-group="{{.Key}}">
        <h3 class="h5 mt-3 font-monospace">{{.Label}}</h3>
        <div class="accordion">
        {{- range .Items}}
            <div class="accordion-item test-item" data-status="{{.FilterKey}}" data-outcome="{{.Outcome}}">
                <h2 class="accordion-header" id="heading-{{.Index}}">
                    <button class="accordion-button{{if not .Expanded}} collapsed{{end}}" type="button" data-bs-toggle="collapse" data-bs-target="#collapse-{{.Index}}" aria-expanded="{{.Expanded}}" aria-controls="collapse-{{.Index}}">
                        <div class="d-flex justify-content-between w-100 align-items-center pe-3">
                            <span class="font-monospace text-truncate test-name" style="max-width: 65%;">{{.Name}}</span>
                            <span class="ms-auto me-3"><span class="badge bg-{{.Badge}}">{{.Label}}</span></span>
                            <span class="text-muted small">{{.Duration}}{{if gt .Attempts 1}} ({{.Attempts}} attempts){{end}}</span>
                        </div>
                    </button>
                </h2>
                <div id="collapse-{{.Index}}" class="accordion-collapse collapse{{if .Expanded}} show{{end}}" aria-labelledby="heading-{{.Index}}">
                    <div class="accordion-body">
                    {{- if or .Log .Screenshot .ShotLink}}
                        {{- if .Log}}
                        <h6>Traceback &amp; Log</h6>
                        <pre class="bg-light p-3 rounded small"><code>{{range .Log}}{{if .Error}}<span class="log-error">{{.Text}}</span>{{else}}{{.Text}}{{end}}
{{end}}</code></pre>
                        {{- end}}
                        {{- if .Screenshot}}
                        <h6 class="mt-3">Failure screenshot</h6>
                        <a href="{{.Screenshot}}" target="_blank" title="Open in a new tab">
                            <img src="{{.Screenshot}}" class="img-fluid rounded border screenshot" alt="Screenshot for {{.Name}}">
                        </a>
                        {{- else if .ShotLink}}
                        <h6 class="mt-3">Failure screenshot</h6>
                        <a href="{{.ShotLink}}" target="_blank">{{.ShotLink}}</a>
                        {{- end}}
                    {{- else}}
                        <p>No additional details.</p>
                    {{- end}}
                    </div>
                </div>
            </div>
        {{- end}}
        </div>
    </section>
    {{- end}}
    <div id="no-tests-message" class="alert alert-info mt-3" style="display: none;">
        No tests match the selected filter.
    </div>
</main>
{{- if .JS}}
<script>{{.JS}}</script>
{{- else if .JSURL}}
<script src="{{.JSURL}}"></script>
{{- end}}
<script>
document.addEventListener('DOMContentLoaded', function () {
    var cards = document.querySelectorAll('.filter-card');
    var items = document.querySelectorAll('.test-item');
    var groups = document.querySelectorAll('.test-group');
    var empty = document.getElementById('no-tests-message');

    cards.forEach(function (card) {
        card.addEventListener('click', function () {
            var filter = card.getAttribute('data-filter');
            var visible = 0;

            cards.forEach(function (c) { c.classList.remove('active'); });
            card.classList.add('active');

            items.forEach(function (item) {
                var show = filter === 'all' || item.getAttribute('data-status') === filter;
                item.style.display = show ? 'block' : 'none';
                if (show) { visible++; }
            });
            groups.forEach(function (group) {
                var any = group.querySelector('.test-item:not([style*="none"])');
                group.style.display = any ? 'block' : 'none';
            });

            empty.style.display = visible === 0 ? 'block' : 'none';
        });
    });
});
</script>
</body>
</html>
`
