package report

import (
	"fmt"
	"html"
	"strings"
	"text/template"
	"time"
)

// Placeholders in the header that are substituted at finalize. Escaped test
// info cannot contain them.
const (
	placeholderResult   = "<!--PASSORFAIL-->"
	placeholderSteps    = "<!--STEPSPERFORMED-->"
	placeholderPassed   = "<!--STEPSPASSED-->"
	placeholderFailed   = "<!--STEPSFAILED-->"
	placeholderFinished = "<!--TIMEFINISHED-->"
	placeholderRuntime  = "<!--RUNTIME-->"
	noScreenshot        = "<br/><b><font class='fail'>No Screenshot Available</font></b>"
	dateLayout          = "2006-01-02"
	clockLayout         = "15:04:05"
)

var headerTemplate = template.Must(template.New("header").Parse(`<html>
 <head>
  <title>{{.Name}}</title>
  <style type='text/css'>
   table { margin-left:auto; margin-right:auto; width:90%; border-collapse:collapse; }
   table, td, th { border:1px solid black; padding:0px 10px; }
   th { text-align:right; }
   td { word-wrap:break-word; }
   .warning { color:orange; }
   .check { color:orange; font-weight:bold; }
   .fail { color:red; font-weight:bold; }
   .pass { color:green; font-weight:bold; }
  </style>
  <script type='text/javascript'>
   function toggleImage(imageName) {
    var element = document.getElementById(imageName);
    element.src = location.href.match(/^.*\//) + imageName;
    element.style.display = (element.style.display != 'none' ? 'none' : '');
   }
   function displayImage(imageName) {
    window.open(location.href.match(/^.*\//) + imageName);
   }
   function toggleVis(col, show) {
    var style = show ? '' : 'none';
    var rows = document.getElementById('all_results').getElementsByTagName('tr');
    rows[0].getElementsByTagName('th')[col].style.display = style;
    for (var row = 1; row < rows.length; row++) {
     rows[row].getElementsByTagName('td')[col].style.display = style;
    }
   }
  </script>
 </head>
 <body>
  <table>
   <tr>
    <th bgcolor='lightblue'><font size='5'>Test</font></th>
    <td bgcolor='lightblue' colspan=3><font size='5'>{{.Name}} </font></td>
   </tr><tr>
    <th>Tester</th>
    <td>Automated</td>
    <th>Version</th>
    <td>{{.Version}}</td>
   </tr><tr>
    <th>Author</th>
    <td>{{.Author}}</td>
    <th>Test Run Time</th>
    <td>
     Start: {{.Start}} <br/>
     End: <!--TIMEFINISHED--> <br/>
     Run Time: <!--RUNTIME-->
    </td>
   </tr><tr>
    <th>Date Tested</th>
    <td>{{.Date}}</td>
    <th>URL Under Test</th>
    <td><a href='{{.URL}}'>{{.URL}}</a></td>
   </tr><tr>
    <th>Browser</th>
    <td colspan=3>{{.Browser}}</td>
   </tr><tr>
    <th>Testing Group</th>
    <td>{{.Group}}</td>
    <th>Testing Suite</th>
    <td>{{.Suite}}</td>
   </tr><tr>
    <th>Test Objectives</th>
    <td colspan=3>{{.Objectives}}</td>
   </tr><tr>
    <th>Overall Results</th>
    <td colspan=3 style='padding: 0px;'>
     <table style='width: 100%;'><tr>
      <td font-size='big' rowspan=2><!--PASSORFAIL--></td>
      <td><b>Steps Performed</b></td><td><b>Steps Passed</b></td><td><b>Steps Failed</b></td>
     </tr><tr>
      <td><!--STEPSPERFORMED--></td><td><!--STEPSPASSED--></td><td><!--STEPSFAILED--></td>
     </tr></table>
    </td>
   </tr><tr>
    <th>View Results</th>
    <td colspan=3>
     <input type=checkbox name='step' onclick='toggleVis(0,this.checked)' checked>Step
     <input type=checkbox name='action' onclick='toggleVis(1,this.checked)' checked>Action
     <input type=checkbox name='expected' onclick='toggleVis(2,this.checked)' checked>Expected Results
     <input type=checkbox name='actual' onclick='toggleVis(3,this.checked)' checked>Actual Results
     <input type=checkbox name='times' onclick='toggleVis(4,this.checked)' checked>Step Times
     <input type=checkbox name='result' onclick='toggleVis(5,this.checked)' checked>Results
    </td>
   </tr>
  </table>
  <table id='all_results'>
   <tr>
    <th align='center'>Step</th><th style='text-align:center'>Action</th><th style='text-align:center'>Expected Result</th><th style='text-align:center'>Actual Result</th><th style='text-align:center'>Step Times</th><th style='text-align:center'>Pass/Fail</th>
   </tr>
`))

type headerData struct {
	Info
	Start string
	Date  string
}

func renderHeader(info Info, start time.Time) string {
	escaped := Info{
		Name:       html.EscapeString(info.Name),
		Group:      html.EscapeString(info.Group),
		Suite:      html.EscapeString(info.Suite),
		Version:    html.EscapeString(info.Version),
		Author:     html.EscapeString(info.Author),
		Objectives: html.EscapeString(info.Objectives),
		URL:        html.EscapeString(info.URL),
		Browser:    html.EscapeString(info.Browser),
		RunID:      info.RunID,
	}

	var b strings.Builder
	// the template only interpolates escaped strings, it cannot fail
	_ = headerTemplate.Execute(&b, headerData{
		Info:  escaped,
		Start: start.Format(clockLayout),
		Date:  start.Format(dateLayout),
	})
	return b.String()
}

func renderRow(step Step) string {
	var b strings.Builder
	b.WriteString("   <tr>\n")
	fmt.Fprintf(&b, "    <td align='center'>%d.</td>\n", step.Number)
	fmt.Fprintf(&b, "    <td>%s</td>\n", step.Action)
	fmt.Fprintf(&b, "    <td>%s</td>\n", step.Expected)
	if step.Result != "" {
		fmt.Fprintf(&b, "    <td class='%s'>%s</td>\n", step.Result, step.Actual)
	} else {
		fmt.Fprintf(&b, "    <td>%s</td>\n", step.Actual)
	}
	fmt.Fprintf(&b, "    <td>%dms / %dms</td>\n", step.StepTime, step.TotalTime)
	fmt.Fprintf(&b, "    <td class='%s'>%s</td>\n", strings.ToLower(step.Status), step.Status)
	b.WriteString("   </tr>\n")
	return b.String()
}

const footer = "  </table>\n </body>\n</html>\n"

func imageLink(name string) string {
	return fmt.Sprintf("<br/><a href='javascript:void(0)' onclick='toggleImage(\"%[1]s\")'>Toggle Screenshot Thumbnail</a>"+
		" <a href='javascript:void(0)' onclick='displayImage(\"%[1]s\")'>View Screenshot Fullscreen</a>"+
		"<br/><img id='%[1]s' border='1px' src='%[1]s' width='300px' style='display:none;'></img>", name)
}

func overallResult(status Result, fails, errors int) string {
	if fails == 0 && errors == 0 {
		if status == SUCCESS {
			return "<font size='+2' class='pass'><b>SUCCESS</b></font>"
		}
		return fmt.Sprintf("<font size='+2' class='warning'><b>%s</b></font>", status)
	}
	return "<font size='+2' class='fail'><b>FAILURE</b></font>"
}

// outcome is the plain-text form of overallResult
func outcome(status Result, fails, errors int) Result {
	if fails == 0 && errors == 0 {
		return status
	}
	return FAILURE
}

// formatClock renders a duration as HH:MM:SS
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
