package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hackgods/vaccine-reservation-scheduling/internal/scheduler"
)

var commandHelp = []string{
	"> create_patient <username> <password>",
	"> create_caregiver <username> <password>",
	"> login_patient <username> <password>",
	"> login_caregiver <username> <password>",
	"> search_caregiver_schedule <date>",
	"> reserve <date> <vaccine>",
	"> upload_availability <date>",
	"> cancel <appointment_id>",
	"> add_doses <vaccine> <number>",
	"> show_appointments",
	"> logout",
	"> help",
	"> quit",
}

// REPL executes line commands for a single user. Each REPL owns its own
// session, so one per connection.
type REPL struct {
	svc  *scheduler.Service
	sess *scheduler.Session
	out  io.Writer
	log  *slog.Logger
}

func New(svc *scheduler.Service, out io.Writer, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		svc:  svc,
		sess: scheduler.NewSession(),
		out:  out,
		log:  logger,
	}
}

// Run reads commands from in until quit, EOF or ctx is done.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	r.printCommands()

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if quit := r.Exec(ctx, scanner.Text()); quit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Exec runs one command line and reports whether the user asked to quit.
func (r *REPL) Exec(ctx context.Context, line string) bool {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return false
	}

	op, args := tokens[0], tokens[1:]
	switch op {
	case "create_patient":
		r.createPatient(ctx, args)
	case "create_caregiver":
		r.createCaregiver(ctx, args)
	case "login_patient":
		r.loginPatient(ctx, args)
	case "login_caregiver":
		r.loginCaregiver(ctx, args)
	case "search_caregiver_schedule":
		r.searchSchedule(ctx, args)
	case "reserve":
		r.reserve(ctx, args)
	case "upload_availability":
		r.uploadAvailability(ctx, args)
	case "cancel":
		r.cancel(ctx, args)
	case "add_doses":
		r.addDoses(ctx, args)
	case "show_appointments":
		r.showAppointments(ctx, args)
	case "logout":
		r.logout(args)
	case "help":
		r.printCommands()
	case "quit":
		r.println("Bye!")
		return true
	default:
		r.println("Invalid operation name!")
	}
	return false
}

func (r *REPL) println(a ...any) {
	fmt.Fprintln(r.out, a...)
}

func (r *REPL) printCommands() {
	r.println("*** Please enter one of the following commands ***")
	for _, line := range commandHelp {
		r.println(line)
	}
	r.println()
}

// storeError logs failures the user cannot act on.
func (r *REPL) storeError(ctx context.Context, op string, err error) {
	if scheduler.KindOf(err) == scheduler.KindStore {
		r.log.ErrorContext(ctx, "command failed",
			slog.String("command", op),
			slog.String("error", err.Error()),
		)
	}
}

func (r *REPL) loggedIn() bool {
	_, ok := r.sess.Current()
	return ok
}

func (r *REPL) loggedInAs(role scheduler.Role) bool {
	_, err := r.sess.Require(role)
	return err == nil
}

func (r *REPL) createPatient(ctx context.Context, args []string) {
	if len(args) != 2 {
		r.println("Create patient failed")
		return
	}

	err := r.svc.CreateAccount(ctx, scheduler.RolePatient, args[0], args[1])
	switch {
	case err == nil:
		r.println("Created user", args[0])
	case errors.Is(err, scheduler.ErrUsernameTaken):
		r.println("Username taken, try again")
	default:
		r.storeError(ctx, "create_patient", err)
		r.println("Create patient failed")
	}
}

func (r *REPL) createCaregiver(ctx context.Context, args []string) {
	if len(args) != 2 {
		r.println("Failed to create user.")
		return
	}

	err := r.svc.CreateAccount(ctx, scheduler.RoleCaregiver, args[0], args[1])
	switch {
	case err == nil:
		r.println("Created user", args[0])
	case errors.Is(err, scheduler.ErrWeakPassword):
		r.println("Please use a strong password")
	case errors.Is(err, scheduler.ErrUsernameTaken):
		r.println("Username taken, try again!")
	default:
		r.storeError(ctx, "create_caregiver", err)
		r.println("Failed to create user.")
	}
}

func (r *REPL) loginPatient(ctx context.Context, args []string) {
	if r.loggedIn() {
		r.println("User already logged in, try again")
		return
	}
	if len(args) != 2 {
		r.println("Login patient failed")
		return
	}

	id, err := r.svc.Login(ctx, r.sess, scheduler.RolePatient, args[0], args[1])
	if err != nil {
		r.storeError(ctx, "login_patient", err)
		r.println("Login patient failed.")
		return
	}
	r.println("Logged in as: " + id.Username)
}

func (r *REPL) loginCaregiver(ctx context.Context, args []string) {
	if r.loggedIn() {
		r.println("User already logged in.")
		return
	}
	if len(args) != 2 {
		r.println("Login failed.")
		return
	}

	id, err := r.svc.Login(ctx, r.sess, scheduler.RoleCaregiver, args[0], args[1])
	if err != nil {
		r.storeError(ctx, "login_caregiver", err)
		r.println("Login failed.")
		return
	}
	r.println("Logged in as: " + id.Username)
}

func (r *REPL) searchSchedule(ctx context.Context, args []string) {
	if !r.loggedIn() {
		r.println("Please login first")
		return
	}
	if len(args) != 1 {
		r.println("Please try again")
		return
	}
	date, err := scheduler.ParseDate(args[0])
	if err != nil {
		r.println("Please try again")
		return
	}

	sched, err := r.svc.ScheduleOn(ctx, r.sess, date)
	if err != nil {
		r.storeError(ctx, "search_caregiver_schedule", err)
		r.println("Please try again")
		return
	}

	for _, c := range sched.Caregivers {
		r.println(c)
	}
	for _, v := range sched.Vaccines {
		r.println(v.Name, v.Doses)
	}
}

func (r *REPL) reserve(ctx context.Context, args []string) {
	if !r.loggedIn() {
		r.println("Please login first")
		return
	}
	if !r.loggedInAs(scheduler.RolePatient) {
		r.println("Please login as a patient")
		return
	}
	if len(args) != 2 {
		r.println("Please try again")
		return
	}
	date, err := scheduler.ParseDate(args[0])
	if err != nil {
		r.println("Please try again")
		return
	}

	res, err := r.svc.Reserve(ctx, r.sess, date, args[1])
	switch {
	case err == nil:
		r.println(fmt.Sprintf("Appointment ID %d, Caregiver username %s", res.ID, res.Caregiver))
	case errors.Is(err, scheduler.ErrNoCaregiverAvailable):
		r.println("No caregiver is available")
	case errors.Is(err, scheduler.ErrOutOfStock):
		r.println("Not enough available doses")
	default:
		r.storeError(ctx, "reserve", err)
		r.println("Please try again")
	}
}

func (r *REPL) uploadAvailability(ctx context.Context, args []string) {
	if !r.loggedInAs(scheduler.RoleCaregiver) {
		r.println("Please login as a caregiver first!")
		return
	}
	if len(args) != 1 {
		r.println("Please try again!")
		return
	}
	date, err := scheduler.ParseDate(args[0])
	if err != nil {
		r.println("Please enter a valid date!")
		return
	}

	if err := r.svc.UploadAvailability(ctx, r.sess, date); err != nil {
		r.storeError(ctx, "upload_availability", err)
		r.println("Error occurred when uploading availability")
		return
	}
	r.println("Availability uploaded!")
}

func (r *REPL) cancel(ctx context.Context, args []string) {
	if !r.loggedIn() {
		r.println("Please login first")
		return
	}
	if len(args) != 1 {
		r.println("Please try again")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		r.println("Please try again")
		return
	}

	err = r.svc.Cancel(ctx, r.sess, id)
	switch {
	case err == nil:
		r.println("Appointment successfully cancelled")
	case errors.Is(err, scheduler.ErrReservationNotFound):
		r.println("No appointments found")
	case errors.Is(err, scheduler.ErrNotOwner):
		r.println("You can only cancel your appointments")
	default:
		r.storeError(ctx, "cancel", err)
		r.println("Please try again")
	}
}

func (r *REPL) addDoses(ctx context.Context, args []string) {
	if !r.loggedInAs(scheduler.RoleCaregiver) {
		r.println("Please login as a caregiver first!")
		return
	}
	if len(args) != 2 {
		r.println("Please try again!")
		return
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		r.println("Please try again!")
		return
	}

	err = r.svc.AddDoses(ctx, r.sess, args[0], count)
	switch {
	case err == nil:
		r.println("Doses updated!")
	case scheduler.KindOf(err) == scheduler.KindValidation:
		r.println("Please try again!")
	default:
		r.storeError(ctx, "add_doses", err)
		r.println("Error occurred when adding doses")
	}
}

func (r *REPL) showAppointments(ctx context.Context, args []string) {
	if !r.loggedIn() {
		r.println("Please login first")
		return
	}
	if len(args) != 0 {
		r.println("Please try again")
		return
	}

	appts, err := r.svc.MyReservations(ctx, r.sess)
	if err != nil {
		r.storeError(ctx, "show_appointments", err)
		r.println("Please try again")
		return
	}
	for _, a := range appts {
		r.println(a.ID, a.Vaccine, scheduler.FormatDate(a.Date), a.Counterparty)
	}
}

func (r *REPL) logout(args []string) {
	if !r.loggedIn() {
		r.println("Please login first")
		return
	}
	if len(args) != 0 {
		r.println("Please try again")
		return
	}

	if err := r.svc.Logout(r.sess); err != nil {
		r.println("Please try again")
		return
	}
	r.println("Successfully logged out")
}
