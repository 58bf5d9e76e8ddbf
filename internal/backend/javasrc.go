package backend

import (
	"fmt"
	"strings"
	"text/template"
)

const (
	javaClassName = "SqlBridgeQuery"
	javaFileName  = javaClassName + ".java"

	// driverClassProperty names the system property the program reads to
	// preload a JDBC driver class.
	driverClassProperty = "sqlbridge.driver"
)

// javaTemplate is the program compiled for each external call. The JDBC URL
// is its only substitution; the statement arrives as args[0] at run time.
//
// Output protocol on stdout:
//   - a result set prints a header line and one line per row, cells
//     separated by tabs, \N for NULL, with \\ \t \n \r escaped;
//   - an update count prints "Rows affected: N";
//   - anything else prints nothing.
//
// Any failure prints the exception to stderr and exits 1.
var javaTemplate = template.Must(template.New(javaFileName).Parse(`import java.io.FileDescriptor;
import java.io.FileOutputStream;
import java.io.PrintStream;
import java.sql.Connection;
import java.sql.DriverManager;
import java.sql.ResultSet;
import java.sql.ResultSetMetaData;
import java.sql.Statement;

public class {{.ClassName}} {
    private static final String URL = {{.URL}};

    public static void main(String[] args) throws Exception {
        if (args.length != 1) {
            System.err.println("usage: {{.ClassName}} <statement>");
            System.exit(2);
        }
        PrintStream out = new PrintStream(new FileOutputStream(FileDescriptor.out), false, "UTF-8");
        try {
            String driver = System.getProperty("{{.DriverProperty}}");
            if (driver != null && !driver.isEmpty()) {
                Class.forName(driver);
            }
            try (Connection conn = DriverManager.getConnection(URL);
                 Statement stmt = conn.createStatement()) {
                if (stmt.execute(args[0])) {
                    try (ResultSet rs = stmt.getResultSet()) {
                        ResultSetMetaData md = rs.getMetaData();
                        int n = md.getColumnCount();
                        StringBuilder line = new StringBuilder();
                        for (int i = 1; i <= n; i++) {
                            if (i > 1) line.append('\t');
                            line.append(escape(md.getColumnLabel(i)));
                        }
                        out.print(line);
                        out.print('\n');
                        while (rs.next()) {
                            line.setLength(0);
                            for (int i = 1; i <= n; i++) {
                                if (i > 1) line.append('\t');
                                line.append(escape(rs.getString(i)));
                            }
                            out.print(line);
                            out.print('\n');
                        }
                    }
                } else {
                    int count = stmt.getUpdateCount();
                    if (count >= 0) {
                        out.print("Rows affected: " + count + "\n");
                    }
                }
            }
        } catch (Exception e) {
            out.flush();
            System.err.println(e.getClass().getName() + ": " + e.getMessage());
            System.exit(1);
        }
        out.flush();
    }

    private static String escape(String s) {
        if (s == null) {
            return "\\N";
        }
        StringBuilder b = new StringBuilder(s.length());
        for (int i = 0; i < s.length(); i++) {
            char c = s.charAt(i);
            switch (c) {
                case '\\': b.append("\\\\"); break;
                case '\t': b.append("\\t"); break;
                case '\n': b.append("\\n"); break;
                case '\r': b.append("\\r"); break;
                default: b.append(c);
            }
        }
        return b.toString();
    }
}
`))

type javaSource struct {
	ClassName      string
	DriverProperty string
	URL            string
}

// renderJavaSource returns the program source with url embedded as a Java
// string literal.
func renderJavaSource(url string) (string, error) {
	var b strings.Builder
	err := javaTemplate.Execute(&b, javaSource{
		ClassName:      javaClassName,
		DriverProperty: driverClassProperty,
		URL:            javaString(url),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render java source: %w", err)
	}
	return b.String(), nil
}

// javaString quotes s as a Java string literal. Control characters use octal
// escapes because javac expands \u escapes before tokenizing, so a \u000a
// would end the line inside the literal.
func javaString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch {
		case r == '\\':
			b.WriteString(`\\`)
		case r == '"':
			b.WriteString(`\"`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\%03o`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
